package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wI2L/jsondiff"

	"github.com/mesh-intelligence/dials/pkg/codec"
	"github.com/mesh-intelligence/dials/pkg/types"
)

// maxPayloadBytes bounds a pushed request body.
const maxPayloadBytes = 1 << 20

const writeWait = 10 * time.Second

// Backend is the canonical state a Server serves.
type Backend interface {
	types.Container
	Locations() ([]types.LocationInfo, error)
}

type declarer interface {
	Declare(loc types.Location, title string, decls []types.Declaration) error
}

// Server applies pushed payloads to a Backend and relays them to
// subscribers. Applies are serialized: a second push to any location waits
// for the first to be stored and broadcast.
type Server struct {
	mu       sync.Mutex
	backend  Backend
	codec    *codec.Codec
	hub      *Hub
	logger   *slog.Logger
	metrics  *metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

type serverConfig struct {
	logger    *slog.Logger
	registry  *prometheus.Registry
	queueSize int
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = logger }
}

// WithRegistry registers the server's metrics on reg and serves reg on
// /metrics. Without it the server uses a private registry.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(c *serverConfig) { c.registry = reg }
}

// WithQueueSize sets how many frames a subscriber may fall behind before
// it is dropped.
func WithQueueSize(n int) ServerOption {
	return func(c *serverConfig) { c.queueSize = n }
}

// NewServer creates a Server for backend.
func NewServer(backend Backend, opts ...ServerOption) (*Server, error) {
	cfg := serverConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	m, err := newMetrics(cfg.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	hub := NewHub(cfg.queueSize)
	hub.onChange = func(delta int) { m.subscribers.Add(float64(delta)) }
	hub.onDrop = m.dropped.Inc

	return &Server{
		backend:  backend,
		codec:    codec.New(codec.WithLogger(cfg.logger), codec.WithMetrics(m.codec)),
		hub:      hub,
		logger:   cfg.logger,
		metrics:  m,
		gatherer: cfg.registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Apply decodes p into the backend's entries at loc, then relays the
// applied fields to every subscriber of loc. Field errors are reported in
// the result; the returned error means the backend itself failed.
func (s *Server) Apply(loc types.Location, p types.Payload) (PushResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.view(loc)
	if err != nil {
		return PushResult{}, err
	}
	res, err := s.codec.Decode(s.backend, loc, p)
	if err != nil {
		return PushResult{}, err
	}
	out := PushResult{
		Applied: res.AppliedNames(),
		Errors:  FieldReports(res.Errors),
	}
	if len(out.Applied) == 0 {
		return out, nil
	}

	after, err := s.view(loc)
	if err != nil {
		return PushResult{}, err
	}
	if out.Changes, err = jsondiff.Compare(before, after); err != nil {
		s.logger.Warn("diff failed", "location", loc.String(), "err", err)
	}

	s.relay(loc, out.Applied, res.Applied)
	return out, nil
}

// Declare replaces the entry set of loc on the backend, serialized with
// Apply. It fails when the backend does not accept declarations.
func (s *Server) Declare(loc types.Location, title string, decls []types.Declaration) error {
	d, ok := s.backend.(declarer)
	if !ok {
		return errors.New("backend does not accept declarations")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return d.Declare(loc, title, decls)
}

// Subscribers returns the number of open subscriptions for loc.
func (s *Server) Subscribers(loc types.Location) int {
	return s.hub.Count(loc)
}

// Close ends every subscription. It does not stop the HTTP listener.
func (s *Server) Close() {
	s.hub.Close()
}

// view renders the displayed values at loc by name.
func (s *Server) view(loc types.Location) (map[string]string, error) {
	entries, err := s.backend.Entries(loc)
	if err != nil {
		return nil, err
	}
	view := make(map[string]string, len(entries))
	for _, e := range entries {
		view[e.Name()] = e.Display()
	}
	return view, nil
}

// relay re-encodes the applied entries in canonical form and broadcasts
// them as one CBOR frame.
func (s *Server) relay(loc types.Location, names []string, applied map[string]types.Entry) {
	echo := types.Payload{Fields: make([]types.Field, 0, len(names))}
	for _, name := range names {
		data, err := applied[name].Write()
		if err != nil {
			s.logger.Warn("relay entry failed", "location", loc.String(), "entry", name, "err", err)
			continue
		}
		echo.Fields = append(echo.Fields, types.Field{Name: name, Data: data})
	}
	frame, err := codec.MarshalPayload(codec.FormatCBOR, echo)
	if err != nil {
		s.logger.Error("relay marshal failed", "location", loc.String(), "err", err)
		return
	}
	n := s.hub.Broadcast(loc, frame)
	s.logger.Debug("relayed", "location", loc.String(), "fields", echo.Len(), "subscribers", n)
}

// Handler returns the HTTP handler serving the API, health and metrics.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.UseEncodedPath()
	r.Use(s.instrument)

	r.Methods(http.MethodGet).Path(pathHealth).HandlerFunc(s.health)
	r.Methods(http.MethodGet).Path(pathMetrics).Handler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Methods(http.MethodGet).Path(pathLocations).HandlerFunc(s.listLocations)
	r.Methods(http.MethodGet).Path(pathLocation).HandlerFunc(s.getSnapshot)
	r.Methods(http.MethodPost).Path(pathPayload).HandlerFunc(s.postPayload)
	r.Methods(http.MethodGet).Path(pathSubscribe).HandlerFunc(s.subscribe)
	return r
}

func (s *Server) instrument(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, writer, request)
		route := request.URL.Path
		if cr := mux.CurrentRoute(request); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.observe(route, request.Method, m.Code, m.Duration.Seconds())
		s.logger.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) health(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(writer, "ok\n")
}

func (s *Server) listLocations(writer http.ResponseWriter, request *http.Request) {
	infos, err := s.backend.Locations()
	if err != nil {
		s.fail(writer, err)
		return
	}
	if infos == nil {
		infos = []types.LocationInfo{}
	}
	s.respond(writer, request, http.StatusOK, infos)
}

func (s *Server) getSnapshot(writer http.ResponseWriter, request *http.Request) {
	loc, err := locationVar(request)
	if err != nil {
		s.fail(writer, err)
		return
	}
	s.mu.Lock()
	entries, err := s.backend.Entries(loc)
	if err != nil {
		s.mu.Unlock()
		s.fail(writer, err)
		return
	}
	snap, err := types.NewSnapshot(loc, types.TitleOrDefault(s.backend, loc, loc.String()), entries)
	s.mu.Unlock()
	if err != nil {
		s.fail(writer, err)
		return
	}
	s.respond(writer, request, http.StatusOK, snap)
}

func (s *Server) postPayload(writer http.ResponseWriter, request *http.Request) {
	loc, err := locationVar(request)
	if err != nil {
		s.fail(writer, err)
		return
	}
	format, err := codec.FormatFromContentType(request.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(writer, http.StatusUnsupportedMediaType, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, maxPayloadBytes))
	if err != nil {
		s.writeError(writer, http.StatusRequestEntityTooLarge, err)
		return
	}
	p, err := codec.UnmarshalPayload(format, body)
	if err != nil {
		s.writeError(writer, http.StatusBadRequest, err)
		return
	}

	res, err := s.Apply(loc, p)
	if err != nil {
		s.fail(writer, err)
		return
	}
	s.respond(writer, request, http.StatusOK, res)
}

func (s *Server) subscribe(writer http.ResponseWriter, request *http.Request) {
	loc, err := locationVar(request)
	if err != nil {
		s.fail(writer, err)
		return
	}
	if _, err := s.backend.Entries(loc); err != nil {
		s.fail(writer, err)
		return
	}

	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	id, frames, cancel := s.hub.Subscribe(loc)
	defer cancel()
	s.logger.Info("subscribed", "location", loc.String(), "subscription", id)

	// The peer never sends data; reading only surfaces its close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for frame := range frames {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			s.logger.Warn("failed to write frame", "subscription", id, "err", err)
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription ended"),
		time.Now().Add(writeWait))
	s.logger.Info("unsubscribed", "location", loc.String(), "subscription", id)
}

// respond writes v in the format the request accepts: CBOR when Accept
// names it, JSON otherwise.
func (s *Server) respond(writer http.ResponseWriter, request *http.Request, code int, v any) {
	format := codec.FormatJSON
	if strings.Contains(request.Header.Get("Accept"), codec.ContentTypeCBOR) {
		format = codec.FormatCBOR
	}
	data, err := codec.Marshal(format, v)
	if err != nil {
		s.writeError(writer, http.StatusInternalServerError, err)
		return
	}
	writer.Header().Set("Content-Type", format.ContentType())
	writer.WriteHeader(code)
	if _, err := writer.Write(data); err != nil {
		s.logger.Error("failed to write out", "err", err)
	}
}

// fail maps a backend error onto a status code.
func (s *Server) fail(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrLocationNotFound):
		s.writeError(writer, http.StatusNotFound, err)
	case errors.Is(err, types.ErrInvalidLocation):
		s.writeError(writer, http.StatusBadRequest, err)
	default:
		s.logger.Error("request failed", "err", err)
		s.writeError(writer, http.StatusInternalServerError, err)
	}
}

// writeError always answers in JSON.
func (s *Server) writeError(writer http.ResponseWriter, code int, err error) {
	data, _ := codec.Marshal(codec.FormatJSON, errorBody{Error: err.Error()})
	writer.Header().Set("Content-Type", codec.ContentTypeJSON)
	writer.WriteHeader(code)
	_, _ = writer.Write(data)
}

func locationVar(request *http.Request) (types.Location, error) {
	raw := mux.Vars(request)["location"]
	loc, err := url.PathUnescape(raw)
	if err != nil || loc == "" {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidLocation, raw)
	}
	return types.Location(loc), nil
}
