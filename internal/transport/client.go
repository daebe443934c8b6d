package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/mesh-intelligence/dials/pkg/codec"
	"github.com/mesh-intelligence/dials/pkg/types"
)

// ErrSubscriptionClosed is returned by Subscribe when the server ends the
// subscription, for example because the subscriber fell behind.
var ErrSubscriptionClosed = errors.New("subscription closed by server")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is match types.ErrLocationNotFound on a 404.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return types.ErrLocationNotFound
	}
	return nil
}

// Client talks to a dials server.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	format codec.Format
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithFormat selects the wire format for pushed payloads and responses.
func WithFormat(f codec.Format) ClientOption {
	return func(c *Client) { c.format = f }
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   base,
		http:   http.DefaultClient,
		dialer: websocket.DefaultDialer,
		format: codec.FormatCBOR,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Locations lists the server's declared locations.
func (c *Client) Locations(ctx context.Context) ([]types.LocationInfo, error) {
	var infos []types.LocationInfo
	if err := c.do(ctx, http.MethodGet, pathLocations, nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// Snapshot fetches the full entry set of loc.
func (c *Client) Snapshot(ctx context.Context, loc types.Location) (types.Snapshot, error) {
	var snap types.Snapshot
	if err := c.do(ctx, http.MethodGet, locationPath(loc), nil, &snap); err != nil {
		return types.Snapshot{}, err
	}
	return snap, nil
}

// Push sends p to loc and returns what the server applied.
func (c *Client) Push(ctx context.Context, loc types.Location, p types.Payload) (PushResult, error) {
	body, err := codec.MarshalPayload(c.format, p)
	if err != nil {
		return PushResult{}, err
	}
	var res PushResult
	if err := c.do(ctx, http.MethodPost, locationPath(loc)+"/payload", body, &res); err != nil {
		return PushResult{}, err
	}
	return res, nil
}

// Subscribe streams the payloads applied at loc to fn until ctx is done,
// which returns nil. fn runs on the calling goroutine, one payload at a
// time. A frame that does not decode is logged and skipped.
func (c *Client) Subscribe(ctx context.Context, loc types.Location, fn func(types.Payload)) error {
	wsURL := strings.Replace(c.base.String(), "http", "ws", 1) + locationPath(loc) + "/subscribe"

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return readStatusError(resp)
		}
		return fmt.Errorf("subscribe %s: %w", loc, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("%w: %s", ErrSubscriptionClosed, ce.Text)
			}
			return fmt.Errorf("subscribe %s: %w", loc, err)
		}
		format := codec.FormatCBOR
		if mt == websocket.TextMessage {
			format = codec.FormatJSON
		}
		p, err := codec.UnmarshalPayload(format, data)
		if err != nil {
			c.logger.Warn("dropped frame", "location", loc.String(), "err", err)
			continue
		}
		fn(p)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", c.format.ContentType())
	if body != nil {
		req.Header.Set("Content-Type", c.format.ContentType())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return readStatusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	format, err := codec.FormatFromContentType(resp.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(format, data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readStatusError(resp *http.Response) error {
	se := &StatusError{Code: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body errorBody
	if codec.Unmarshal(codec.FormatJSON, data, &body) == nil {
		se.Message = body.Error
	}
	return se
}

func locationPath(loc types.Location) string {
	return pathLocations + "/" + url.PathEscape(loc.String())
}
