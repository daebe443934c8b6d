// Package codec moves changed entry values across a process boundary.
// Encode turns the dirty entries of a container into a sparse Payload;
// Decode applies a received Payload to the receiving container's own
// declared entries. Both isolate failures per field: one bad field is
// reported and skipped, the rest of the batch proceeds.
package codec

import (
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// Receiver is what Decode needs from a container: the current entry set
// and a batch notification.
type Receiver interface {
	types.EntryProducer
	types.EntryConsumer
}

// Codec encodes and decodes payloads. The zero value is not usable; call
// New. A Codec holds no entry state and may be shared.
type Codec struct {
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used to report field errors.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records encode and decode counters on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Codec) { c.metrics = m }
}

// New creates a Codec. Without WithLogger it logs to slog.Default().
func New(opts ...Option) *Codec {
	c := &Codec{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode is New().Encode.
func Encode(entries []types.Entry) (types.Payload, []types.FieldError) {
	return New().Encode(entries)
}

// Decode is New().Decode.
func Decode(r Receiver, loc types.Location, p types.Payload) (Result, error) {
	return New().Decode(r, loc, p)
}

// Encode writes every dirty entry, in traversal order, into a payload.
// Clean entries are omitted. An entry whose Write fails is left out of the
// payload and reported as EncodeEntryFailed; encoding continues with the
// next entry. Encode never changes dirty state.
func (c *Codec) Encode(entries []types.Entry) (types.Payload, []types.FieldError) {
	p := types.Payload{Fields: make([]types.Field, 0, len(entries))}
	var errs []types.FieldError
	for _, e := range entries {
		if !e.IsDirty() {
			continue
		}
		data, err := e.Write()
		if err != nil {
			fe := types.NewFieldError(e.Name(), types.EncodeEntryFailed, err)
			c.logger.Warn("encode entry failed", "entry", e.Name(), "err", err)
			c.metrics.fieldError(fe.Kind)
			errs = append(errs, fe)
			continue
		}
		p.Fields = append(p.Fields, types.Field{Name: e.Name(), Data: data})
	}
	c.metrics.encoded(len(p.Fields))
	return p, errs
}

// Result is the outcome of one Decode call.
type Result struct {
	// Applied holds every entry that read its field successfully, by name.
	Applied map[string]types.Entry

	// Errors lists the fields that were skipped, in payload order.
	Errors []types.FieldError

	order []string
}

// AppliedNames returns the applied entry names in the order they first
// appeared in the payload.
func (r Result) AppliedNames() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Decode applies p to the entries r currently declares for loc.
//
// A field naming an entry r does not declare is reported as
// UnknownEntryName; a field whose Read fails is reported as
// DecodeEntryFailed. Neither stops the remaining fields. When at least one
// field applied, r.ApplyEntries is called exactly once with all of them;
// otherwise it is not called.
//
// The returned error is reserved for the receiver itself failing: it could
// not produce its entries, or its batch notification returned an error.
// Field-level problems are only ever reported in Result.Errors.
func (c *Codec) Decode(r Receiver, loc types.Location, p types.Payload) (Result, error) {
	res := Result{Applied: make(map[string]types.Entry)}

	entries, err := r.Entries(loc)
	if err != nil {
		return res, fmt.Errorf("entries for %s: %w", loc, err)
	}
	index := types.EntryIndex(entries)

	for _, f := range p.Fields {
		e, ok := index[f.Name]
		if !ok {
			c.report(&res, loc, types.NewFieldError(f.Name, types.UnknownEntryName,
				fmt.Errorf("%q is not declared at %s", f.Name, loc)))
			continue
		}
		if err := e.Read(f.Data); err != nil {
			c.report(&res, loc, types.NewFieldError(f.Name, types.DecodeEntryFailed, err))
			continue
		}
		if _, seen := res.Applied[f.Name]; !seen {
			res.order = append(res.order, f.Name)
		}
		res.Applied[f.Name] = e
	}

	if len(res.Applied) == 0 {
		return res, nil
	}
	if err := r.ApplyEntries(loc, res.Applied); err != nil {
		return res, fmt.Errorf("apply entries at %s: %w", loc, err)
	}
	c.metrics.applied(len(res.Applied))
	return res, nil
}

func (c *Codec) report(res *Result, loc types.Location, fe types.FieldError) {
	c.logger.Warn("decode field skipped", "location", loc.String(), "entry", fe.Name, "kind", string(fe.Kind), "err", fe.Err)
	c.metrics.fieldError(fe.Kind)
	res.Errors = append(res.Errors, fe)
}
