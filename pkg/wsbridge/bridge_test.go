package wsbridge

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/tagqueue/pkg/datalayer"
	"github.com/harun/tagqueue/pkg/gtm"
	"github.com/harun/tagqueue/pkg/tagqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = zerolog.New(io.Discard).Level(zerolog.Disabled)

// stubSink succeeds with the method name, fails "boom" and never resolves "hang"
type stubSink struct {
	mu      sync.Mutex
	methods []string
}

func (s *stubSink) Invoke(_ context.Context, inv tagqueue.Invocation, reply *tagqueue.Completion) {
	s.mu.Lock()
	s.methods = append(s.methods, inv.Method)
	s.mu.Unlock()

	switch inv.Method {
	case "boom":
		reply.Fail(errors.New("boom failed"))
	case "hang":
	default:
		reply.Succeed(inv.Method)
	}
}

func (s *stubSink) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func startServer(t *testing.T, sink tagqueue.Sink, opts ...HandlerOption) string {
	t.Helper()
	srv := httptest.NewServer(Handler(sink, quiet, opts...))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, opts ...DialOption) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, url, quiet, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func call(c *Client, method string, args ...any) *tagqueue.Completion {
	if args == nil {
		args = []any{}
	}
	reply := tagqueue.NewCompletion()
	c.Invoke(context.Background(), tagqueue.Invocation{
		CallID:    "call-" + method,
		Namespace: tagqueue.Namespace,
		Method:    method,
		Args:      args,
	}, reply)
	return reply
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBridge_RoundTrip(t *testing.T) {
	sink := &stubSink{}
	c := dial(t, startServer(t, sink))
	ctx := waitCtx(t)

	msg, err := call(c, "dispatch").Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dispatch", msg)

	_, err = call(c, "boom").Wait(ctx)
	require.Error(t, err)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "boom failed", remote.Message)

	assert.Equal(t, 0, c.Pending())
}

func TestBridge_ArrivalOrder(t *testing.T) {
	sink := &stubSink{}
	c := dial(t, startServer(t, sink))
	ctx := waitCtx(t)

	methods := []string{"initGTM", "trackPage", "pushEvent", "dispatch", "exitGTM"}
	replies := make([]*tagqueue.Completion, len(methods))
	for i, m := range methods {
		replies[i] = call(c, m)
	}
	for _, r := range replies {
		_, err := r.Wait(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, methods, sink.Methods())
}

func TestBridge_CloseFailsPending(t *testing.T) {
	c := dial(t, startServer(t, &stubSink{}))
	ctx := waitCtx(t)

	hanging := call(c, "hang")
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())

	_, err := hanging.Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("client never reported done")
	}

	t.Run("invoke after close", func(t *testing.T) {
		_, err := call(c, "dispatch").Wait(ctx)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestBridge_Secret(t *testing.T) {
	url := startServer(t, &stubSink{}, RequireSecret("s3cret"))

	t.Run("rejected without secret", func(t *testing.T) {
		_, err := Dial(waitCtx(t), url, quiet)
		assert.Error(t, err)
	})

	t.Run("rejected with wrong secret", func(t *testing.T) {
		_, err := Dial(waitCtx(t), url, quiet, WithSecret("nope"))
		assert.Error(t, err)
	})

	t.Run("accepted", func(t *testing.T) {
		c := dial(t, url, WithSecret("s3cret"))
		msg, err := call(c, "dispatch").Wait(waitCtx(t))
		require.NoError(t, err)
		assert.Equal(t, "dispatch", msg)
	})
}

func TestBridge_DispatcherOverWebSocket(t *testing.T) {
	store := datalayer.NewMemoryStore()
	defer store.Close()
	bridge := gtm.NewBridge(store, quiet)

	c := dial(t, startServer(t, bridge))
	timer := tagqueue.NewManualTimer()
	d := tagqueue.New(c, tagqueue.WithTimer(timer), tagqueue.WithLogger(quiet))
	ctx := waitCtx(t)

	initDone := d.Init("GTM-WS", 15)
	event := d.TrackEvent("Checkout", "Click", "", -1)
	product := d.PushDetailView(tagqueue.Product{Name: "Runner", ID: "SKU-1", Price: "10"})
	exit := d.Exit()

	for d.Len() > 0 {
		timer.Fire()
	}

	msg, err := initDone.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "initGTM - id = GTM-WS; interval = 15 seconds", msg)

	msg, err = event.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "trackEvent - category = Checkout; action = Click; label = ; value = -1", msg)

	_, err = product.Wait(ctx)
	require.NoError(t, err)

	_, err = exit.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, d.Running())

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "interaction", entries[0].Data["event"])
	assert.Equal(t, "detailView", entries[1].Data["event"])
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	srv := Handler(&stubSink{}, quiet)
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)
	url := "ws" + strings.TrimPrefix(hs.URL, "http")

	c := dial(t, url)
	ctx := waitCtx(t)

	hanging := call(c, "hang")
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 10*time.Millisecond)

	srv.Close()

	_, err := hanging.Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	require.Eventually(t, func() bool { return srv.Connections() == 0 }, time.Second, 10*time.Millisecond)

	t.Run("client close after disconnect", func(t *testing.T) {
		select {
		case <-c.Done():
		case <-ctx.Done():
			t.Fatal("client did not notice the disconnect")
		}
		assert.NoError(t, c.Close())
	})

	t.Run("new connections refused", func(t *testing.T) {
		_, err := Dial(ctx, url, quiet)
		assert.Error(t, err)
	})
}

func TestServer_InvalidFrame(t *testing.T) {
	url := startServer(t, &stubSink{})

	conn, _, err := websocket.DefaultDialer.DialContext(waitCtx(t), url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var rep Reply
	require.NoError(t, conn.ReadJSON(&rep))
	assert.False(t, rep.OK)
	assert.Contains(t, rep.Error, "invalid frame")

	require.NoError(t, conn.WriteJSON(Request{ID: "abc"}))
	require.NoError(t, conn.ReadJSON(&rep))
	assert.Equal(t, "abc", rep.ID)
	assert.False(t, rep.OK)
}
