package mirror

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/dials/internal/sqlite"
	"github.com/mesh-intelligence/dials/internal/transport"
	"github.com/mesh-intelligence/dials/pkg/codec"
	"github.com/mesh-intelligence/dials/pkg/types"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type remoteFixture struct {
	server  *transport.Server
	backend *sqlite.Backend
	url     string
}

func newRemote(t *testing.T) *remoteFixture {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { _ = b.Detach() })
	require.NoError(t, b.Declare(speaker, "Kitchen speaker", []types.Declaration{volumeDecl, labelDecl, powerDecl}))

	srv, err := transport.NewServer(b, transport.WithLogger(quiet))
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
	})
	return &remoteFixture{server: srv, backend: b, url: hs.URL}
}

func (r *remoteFixture) session(t *testing.T, loc types.Location) *Session {
	t.Helper()
	c, err := transport.NewClient(r.url, transport.WithClientLogger(quiet))
	require.NoError(t, err)
	return NewSession(c, loc, WithLogger(quiet))
}

func (r *remoteFixture) display(t *testing.T, name string) string {
	t.Helper()
	entries, err := r.backend.Entries(speaker)
	require.NoError(t, err)
	return types.EntryIndex(entries)[name].Display()
}

func TestSessionRequiresOpen(t *testing.T) {
	s := NewSession(&fakeRemote{}, speaker)
	_, err := s.Entries()
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, s.Edit("volume", "1"), ErrNotOpen)
	_, _, err = s.Push(context.Background())
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, s.Follow(context.Background(), nil), ErrNotOpen)
}

func TestSessionOpen(t *testing.T) {
	r := newRemote(t)
	s := r.session(t, speaker)

	require.NoError(t, s.Open(context.Background()))

	assert.Equal(t, "Kitchen speaker", s.Title())
	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "50", entries[0].Display())
}

func TestSessionOpenUnknownLocation(t *testing.T) {
	r := newRemote(t)
	err := r.session(t, "nowhere").Open(context.Background())
	assert.ErrorIs(t, err, types.ErrLocationNotFound)
}

func TestSessionTitleDefaultsToLocation(t *testing.T) {
	s := NewSession(&fakeRemote{snap: types.Snapshot{Location: speaker}}, speaker)
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, "10,64,-3", s.Title())
}

func TestSessionEdit(t *testing.T) {
	r := newRemote(t)
	s := r.session(t, speaker)
	require.NoError(t, s.Open(context.Background()))

	require.NoError(t, s.Edit("volume", "70"))
	err := s.Edit("power", "maybe")
	assert.ErrorIs(t, err, types.ErrValidationRejected)
	assert.ErrorIs(t, s.Edit("bass", "1"), types.ErrUnknownEntryName)

	assert.Equal(t, []string{"volume"}, s.Dirty())
}

func TestSessionPushClearsConfirmedEntries(t *testing.T) {
	r := newRemote(t)
	s := r.session(t, speaker)
	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Edit("volume", "70"))
	require.NoError(t, s.Edit("label", "kitchen"))

	res, encErrs, err := s.Push(context.Background())

	require.NoError(t, err)
	assert.Empty(t, encErrs)
	assert.Equal(t, []string{"volume", "label"}, res.Applied)
	assert.Empty(t, s.Dirty())
	assert.Equal(t, "70", r.display(t, "volume"))
	assert.Equal(t, "kitchen", r.display(t, "label"))
}

func TestSessionPushNothingDirty(t *testing.T) {
	remote := &fakeRemote{snap: speakerSnapshot(t, "")}
	s := NewSession(remote, speaker)
	require.NoError(t, s.Open(context.Background()))

	res, _, err := s.Push(context.Background())

	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Zero(t, remote.pushes, "an empty payload is not sent")
}

func TestSessionPushKeepsUnconfirmedDirty(t *testing.T) {
	remote := &fakeRemote{snap: speakerSnapshot(t, "")}
	remote.push = func(p types.Payload) transport.PushResult {
		// The server accepts volume and skips label.
		return transport.PushResult{
			Applied: []string{"volume"},
			Errors:  []transport.FieldReport{{Name: "label", Kind: types.DecodeEntryFailed}},
		}
	}
	s := NewSession(remote, speaker, WithLogger(quiet))
	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Edit("volume", "70"))
	require.NoError(t, s.Edit("label", "kitchen"))

	_, _, err := s.Push(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"label"}, s.Dirty())
	assert.Equal(t, []string{"volume", "label"}, remote.last.Names())
}

func TestSessionPushKeepsEditMadeInFlight(t *testing.T) {
	remote := &fakeRemote{snap: speakerSnapshot(t, "")}
	s := NewSession(remote, speaker, WithLogger(quiet))
	remote.push = func(p types.Payload) transport.PushResult {
		require.NoError(t, s.Edit("volume", "90"))
		return transport.PushResult{Applied: []string{"volume"}}
	}
	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Edit("volume", "70"))

	_, _, err := s.Push(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"volume"}, s.Dirty(), "the newer edit is still unpushed")
}

func TestSessionPushFailureKeepsDirty(t *testing.T) {
	r := newRemote(t)
	s := r.session(t, speaker)
	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Edit("volume", "70"))
	require.NoError(t, r.backend.Forget(speaker))

	_, _, err := s.Push(context.Background())

	assert.ErrorIs(t, err, types.ErrLocationNotFound)
	assert.Equal(t, []string{"volume"}, s.Dirty())
}

func TestSessionFollowAppliesRemoteEdits(t *testing.T) {
	r := newRemote(t)
	follower := r.session(t, speaker)
	editor := r.session(t, speaker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, follower.Open(ctx))
	require.NoError(t, editor.Open(ctx))

	results := make(chan codec.Result, 1)
	done := make(chan error, 1)
	go func() { done <- follower.Follow(ctx, func(res codec.Result) { results <- res }) }()
	require.Eventually(t, func() bool { return r.server.Subscribers(speaker) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, editor.Edit("power", "on"))
	_, _, err := editor.Push(ctx)
	require.NoError(t, err)

	select {
	case res := <-results:
		assert.Equal(t, []string{"power"}, res.AppliedNames())
		assert.Empty(t, res.Errors)
	case <-time.After(2 * time.Second):
		t.Fatal("no payload followed")
	}
	entries, err := follower.Entries()
	require.NoError(t, err)
	power := types.EntryIndex(entries)["power"]
	assert.Equal(t, "true", power.Display())
	assert.False(t, power.IsDirty(), "followed values are canonical")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestSessionApplyToleratesUnknownFields(t *testing.T) {
	s := NewSession(&fakeRemote{snap: speakerSnapshot(t, "")}, speaker, WithLogger(quiet))
	require.NoError(t, s.Open(context.Background()))

	res, err := s.Apply(types.Payload{Fields: []types.Field{{Name: "bass", Data: []byte{0x01}}}})

	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, 1, types.CountKind(res.Errors, types.UnknownEntryName))
}

// fakeRemote serves a fixed snapshot and records pushes.
type fakeRemote struct {
	snap   types.Snapshot
	push   func(types.Payload) transport.PushResult
	pushes int
	last   types.Payload
}

func (f *fakeRemote) Snapshot(context.Context, types.Location) (types.Snapshot, error) {
	return f.snap, nil
}

func (f *fakeRemote) Push(_ context.Context, _ types.Location, p types.Payload) (transport.PushResult, error) {
	f.pushes++
	f.last = p
	if f.push != nil {
		return f.push(p), nil
	}
	return transport.PushResult{Applied: p.Names()}, nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, _ types.Location, _ func(types.Payload)) error {
	<-ctx.Done()
	return nil
}
