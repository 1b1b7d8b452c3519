package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe(4)
	defer a.Close()

	require.NoError(t, a.Send([]byte("ping")))
	data, err := b.Receive()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(data))

	require.NoError(t, b.Send([]byte("pong")))
	data, err = a.Receive()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(data))

	assert.NotEqual(t, a.ID(), b.ID())
}

func TestPipeQueueFull(t *testing.T) {
	a, b := Pipe(1)
	defer b.Close()

	require.NoError(t, a.Send([]byte("1")))
	assert.ErrorIs(t, a.Send([]byte("2")), ErrSendQueueFull)
}

func TestPipeCloseClosesBothEnds(t *testing.T) {
	a, b := Pipe(1)
	require.NoError(t, b.Close())

	_, err := a.Receive()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Send([]byte("x")), ErrClosed)

	select {
	case <-a.Done():
	default:
		t.Fatal("expected a.Done to be closed")
	}
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := New(ws, Options{})
		defer conn.Close()
		for {
			data, err := conn.Receive()
			if err != nil {
				return
			}
			_ = conn.Send(data)
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSocketEcho(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, wsURL(srv), nil, Options{})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send([]byte(`{"t":"presence","d":[]}`)))
	data, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, `{"t":"presence","d":[]}`, string(data))
}

func TestSocketSendAfterClose(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	conn, err := Dial(context.Background(), wsURL(srv), nil, Options{})
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Send([]byte("late")), ErrClosed)
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), wsURL(srv), nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSplice(t *testing.T) {
	clientA, edgeA := Pipe(4)
	edgeB, shardB := Pipe(4)

	done := make(chan struct{})
	go func() {
		Splice(edgeA, edgeB)
		close(done)
	}()

	require.NoError(t, clientA.Send([]byte("up")))
	data, err := shardB.Receive()
	require.NoError(t, err)
	assert.Equal(t, "up", string(data))

	require.NoError(t, shardB.Send([]byte("down")))
	data, err = clientA.Receive()
	require.NoError(t, err)
	assert.Equal(t, "down", string(data))

	require.NoError(t, clientA.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("splice did not return after one side closed")
	}
	_, err = shardB.Receive()
	assert.ErrorIs(t, err, ErrClosed)
}
