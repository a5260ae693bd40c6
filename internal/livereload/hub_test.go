package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/mixpaths/internal/cache"
	"github.com/conneroisu/mixpaths/internal/compiler"
	"github.com/conneroisu/mixpaths/internal/entry"
	"github.com/conneroisu/mixpaths/internal/manifest"
)

type staticLoader struct {
	m   manifest.Manifest
	err error
}

func (l staticLoader) Load() (manifest.Manifest, error) { return l.m, l.err }

type staticMetrics struct {
	snapshot compiler.MetricsSnapshot
}

func (m staticMetrics) Metrics() compiler.MetricsSnapshot { return m.snapshot }

func startHub(t *testing.T, loader ManifestLoader) (*Hub, *httptest.Server) {
	t.Helper()

	return startHubWithMetrics(t, loader, staticMetrics{})
}

func startHubWithMetrics(t *testing.T, loader ManifestLoader, metrics MetricsSource) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(HubOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(NewRouter(hub, loader, metrics))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	before := hub.Clients()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/livereload", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool { return hub.Clients() == before+1 }, 2*time.Second, 10*time.Millisecond)

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))

	return msg
}

func TestNotifyCompiledReachesClients(t *testing.T) {
	hub, srv := startHub(t, staticLoader{m: manifest.Manifest{}})

	first := dial(t, hub, srv)
	second := dial(t, hub, srv)

	e := entry.Entry{
		Src:      filepath.Join("resources", "a.txt"),
		Dest:     filepath.Join("public", "txt", "a.txt"),
		PublicID: "/txt/a.txt",
	}
	hub.NotifyCompiled(e, "hello")

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeEntryCompiled, msg.Type)
		assert.Equal(t, "/txt/a.txt", msg.PublicID)
		assert.Equal(t, e.Dest, msg.Dest)
		assert.Equal(t, 5, msg.Size)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestMessagesArriveInOrder(t *testing.T) {
	hub, srv := startHub(t, staticLoader{m: manifest.Manifest{}})
	conn := dial(t, hub, srv)

	for _, id := range []string{"/txt/<c>.txt", "/txt/b.txt", "/txt/a.txt"} {
		hub.NotifyCompiled(entry.Entry{PublicID: id}, "")
	}

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, readMessage(t, conn).PublicID)
	}
	assert.Equal(t, []string{"/txt/<c>.txt", "/txt/b.txt", "/txt/a.txt"}, got)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t, staticLoader{m: manifest.Manifest{}})
	conn := dial(t, hub, srv)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseRejectsNewClients(t *testing.T) {
	hub := NewHub(HubOptions{})
	hub.Close()
	hub.Close()

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livereload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	assert.NoError(t, hub.Run(context.Background()))
}

func TestRunDisconnectsClientsOnReturn(t *testing.T) {
	hub := NewHub(HubOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv := httptest.NewServer(NewRouter(hub, staticLoader{m: manifest.Manifest{}}, staticMetrics{}))
	defer srv.Close()

	conn := dial(t, hub, srv)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, hub.Clients())

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	_, _, err := conn.Read(readCtx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	// A connection accepted after Run returned is not admitted.
	assert.False(t, hub.admit(&client{send: make(chan []byte, 1)}))
	assert.Zero(t, hub.Clients())
}

func TestManifestEndpoint(t *testing.T) {
	_, srv := startHub(t, staticLoader{m: manifest.Manifest{"/js/app.js": "/js/app.js?id=752e64981810d0203520"}})

	resp, err := http.Get(srv.URL + "/manifest")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var m manifest.Manifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, "/js/app.js?id=752e64981810d0203520", m["/js/app.js"])
}

func TestManifestEndpointError(t *testing.T) {
	_, srv := startHub(t, staticLoader{err: errors.New("broken manifest")})

	resp, err := http.Get(srv.URL + "/manifest")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := startHubWithMetrics(t, staticLoader{m: manifest.Manifest{}}, staticMetrics{snapshot: compiler.MetricsSnapshot{
		TotalPasses:      4,
		SuccessfulPasses: 3,
		FailedPasses:     1,
		EntriesCompiled:  9,
		AverageDuration:  2 * time.Millisecond,
		LastError:        errors.New("Unable to locate Mix file: '/missing'."),
		TemplateCache:    cache.Stats{Hits: 3, Misses: 1},
	}})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(4), body["passes"])
	assert.Equal(t, float64(1), body["failed_passes"])
	assert.Equal(t, float64(75), body["success_rate"])
	assert.Equal(t, "2ms", body["average_duration"])
	assert.Equal(t, "Unable to locate Mix file: '/missing'.", body["last_error"])

	templates, ok := body["template_cache"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0.75, templates["hit_rate"])
}

func TestHealthz(t *testing.T) {
	hub, srv := startHub(t, staticLoader{m: manifest.Manifest{}})
	dial(t, hub, srv)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["clients"])
}

func TestServerShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hub := NewHub(HubOptions{})
	s := NewServer(listener.Addr().String(), NewRouter(hub, staticLoader{m: manifest.Manifest{}}, staticMetrics{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
