package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mesh-intelligence/dials/internal/transport"
	"github.com/mesh-intelligence/dials/pkg/codec"
	"github.com/mesh-intelligence/dials/pkg/types"
)

// ErrNotOpen is returned by Session methods called before Open.
var ErrNotOpen = errors.New("session is not open")

// Remote is the server side of a Session.
type Remote interface {
	Snapshot(ctx context.Context, loc types.Location) (types.Snapshot, error)
	Push(ctx context.Context, loc types.Location, p types.Payload) (transport.PushResult, error)
	Subscribe(ctx context.Context, loc types.Location, fn func(types.Payload)) error
}

var _ Remote = (*transport.Client)(nil)

// Session edits the local copy of one location. Edits, pushes and
// incoming payloads are serialized.
type Session struct {
	mu     sync.Mutex
	remote Remote
	loc    types.Location
	store  *MemStore
	codec  *codec.Codec
	logger *slog.Logger
	open   bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore keeps the local copy in store instead of a private MemStore.
func WithStore(store *MemStore) SessionOption {
	return func(s *Session) { s.store = store }
}

// NewSession creates a Session for loc on remote. Call Open before use.
func NewSession(remote Remote, loc types.Location, opts ...SessionOption) *Session {
	s := &Session{remote: remote, loc: loc, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = NewMemStore()
	}
	s.codec = codec.New(codec.WithLogger(s.logger))
	return s
}

// Open fetches the location's snapshot and replaces the local copy.
// Unpushed edits are discarded.
func (s *Session) Open(ctx context.Context) error {
	snap, err := s.remote.Snapshot(ctx, s.loc)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.loc, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Load(snap); err != nil {
		return err
	}
	s.open = true
	return nil
}

// Location returns the session's location.
func (s *Session) Location() types.Location { return s.loc }

// Title returns the server's title, or the location key when it sent
// none.
func (s *Session) Title() string {
	return types.TitleOrDefault(s.store, s.loc, s.loc.String())
}

// Entries returns the local entries in declaration order.
func (s *Session) Entries() ([]types.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, ErrNotOpen
	}
	return s.store.Entries(s.loc)
}

// Edit applies editor text to the named entry. Rejected text leaves the
// entry unchanged and returns an error wrapping ErrValidationRejected.
func (s *Session) Edit(name, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrNotOpen
	}
	p, err := s.store.Property(s.loc, name)
	if err != nil {
		return err
	}
	if err := p.Parse(text); err != nil {
		return types.NewFieldError(name, types.ValidationRejected, err)
	}
	return nil
}

// Dirty returns the names of entries with unpushed edits.
func (s *Session) Dirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.store.Entries(s.loc)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDirty() {
			names = append(names, e.Name())
		}
	}
	return names
}

// Push sends every dirty entry to the server. An entry is marked clean only
// when the server reports it applied and it was not edited again while the
// push was in flight. Encode failures are returned alongside the result.
func (s *Session) Push(ctx context.Context) (transport.PushResult, []types.FieldError, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return transport.PushResult{}, nil, ErrNotOpen
	}
	entries, err := s.store.Entries(s.loc)
	if err != nil {
		s.mu.Unlock()
		return transport.PushResult{}, nil, err
	}
	p, encErrs := s.codec.Encode(entries)
	sent := make(map[string]string, p.Len())
	for _, e := range entries {
		if e.IsDirty() {
			sent[e.Name()] = e.Display()
		}
	}
	s.mu.Unlock()

	if p.IsEmpty() {
		return transport.PushResult{}, encErrs, nil
	}
	res, err := s.remote.Push(ctx, s.loc, p)
	if err != nil {
		return transport.PushResult{}, encErrs, fmt.Errorf("push %s: %w", s.loc, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range res.Applied {
		prop, err := s.store.Property(s.loc, name)
		if err != nil {
			continue
		}
		if display, ok := sent[name]; ok && prop.Display() == display {
			prop.MarkClean()
		}
	}
	for _, fr := range res.Errors {
		s.logger.Warn("server skipped field", "location", s.loc.String(), "entry", fr.Name, "kind", string(fr.Kind), "message", fr.Message)
	}
	return res, encErrs, nil
}

// Follow applies the payloads the server relays for the session's
// location until ctx is done. fn, when not nil, is called after each
// payload with the decode result. Relayed values overwrite local edits of
// the same entries.
func (s *Session) Follow(ctx context.Context, fn func(codec.Result)) error {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return s.remote.Subscribe(ctx, s.loc, func(p types.Payload) {
		res, err := s.Apply(p)
		if err != nil {
			s.logger.Error("apply relayed payload", "location", s.loc.String(), "err", err)
			return
		}
		if fn != nil {
			fn(res)
		}
	})
}

// Apply decodes p into the local copy.
func (s *Session) Apply(p types.Payload) (codec.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return codec.Result{}, ErrNotOpen
	}
	return s.codec.Decode(s.store, s.loc, p)
}
