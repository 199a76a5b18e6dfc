package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/studio"
	"github.com/conneroisu/buttonstudio/internal/testutils"
)

func newTestServer(t *testing.T, files ...string) (*Server, *httptest.Server) {
	t.Helper()
	root := t.TempDir()
	testutils.Touch(t, root, files...)

	s, err := New(testutils.CreateTestConfig(root), Options{})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

// runHub starts the goroutines Start would start, without binding a port.
func runHub(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.hub.Run(ctx)
	go s.forwardStudioEvents(ctx)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHomePage(t *testing.T) {
	_, ts := newTestServer(t, "routes/index.tsx")

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body := readBody(t, resp)
	assert.Contains(t, body, `data-island="counter"`)
	assert.Contains(t, body, `data-counter-id="main"`)
	assert.Contains(t, body, `<p class="counter-value" aria-live="polite">3</p>`)
	assert.Contains(t, body, `data-island="audio"`)
	assert.NotContains(t, body, "data-dev-reload")
}

func TestNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "/does-not-exist")
}

func TestCounterEndpoints(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/counter/main")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeCounterNotFound, decode[ErrorResponse](t, resp).Code)

	resp, err = http.Post(ts.URL+"/api/counter/main/increment", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, CounterResponse{ID: "main", Value: 4}, decode[CounterResponse](t, resp))

	for i := 0; i < 2; i++ {
		resp, err = http.Post(ts.URL+"/api/counter/main/decrement", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err = http.Get(ts.URL + "/api/counter/main")
	require.NoError(t, err)
	assert.Equal(t, CounterResponse{ID: "main", Value: 2}, decode[CounterResponse](t, resp))

	// Counters are independent.
	resp, err = http.Post(ts.URL+"/api/counter/other/decrement", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, CounterResponse{ID: "other", Value: 2}, decode[CounterResponse](t, resp))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.CounterChanges.WithLabelValues("increment")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.CounterChanges.WithLabelValues("decrement")))
}

func TestCounterRejectsInvalidID(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/counter/bad.id/increment", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeInvalidCounter, decode[ErrorResponse](t, resp).Code)
}

func TestCounterMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/counter/main/increment")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAudioEndpoints(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/audio")
	require.NoError(t, err)
	assert.Equal(t, AudioResponse{Status: studio.AudioIdle}, decode[AudioResponse](t, resp))

	resp, err = http.Post(ts.URL+"/api/audio/toggle", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, AudioResponse{Status: studio.AudioRecording, Recording: true}, decode[AudioResponse](t, resp))

	resp, err = http.Post(ts.URL+"/api/audio/toggle", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, AudioResponse{Status: studio.AudioIdle}, decode[AudioResponse](t, resp))

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.AudioToggles))
}

func TestManifestJSON(t *testing.T) {
	s, ts := newTestServer(t,
		"routes/index.tsx",
		"routes/blog/[slug].tsx",
		"routes/_app.tsx",
		"islands/Counter.tsx",
	)

	resp, err := http.Get(ts.URL + "/api/manifest")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[ManifestResponse](t, resp)
	assert.ElementsMatch(t, []string{"routes/_app.tsx", "routes/blog/[slug].tsx", "routes/index.tsx"}, body.Routes)
	assert.Equal(t, []string{"islands/Counter.tsx"}, body.Islands)
	assert.Len(t, body.Entries, 4)
	assert.True(t, body.Stale, "no manifest on disk yet")

	// Outside dev mode the file is never written.
	_, err = os.Stat(s.pipeline.ManifestPath())
	assert.True(t, os.IsNotExist(err))
}

func TestManifestConflict(t *testing.T) {
	_, ts := newTestServer(t, "routes/about.tsx", "routes/(marketing)/about.tsx")

	resp, err := http.Get(ts.URL + "/api/manifest")
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, errors.ErrCodeRouteConflict, body.Code)
	assert.Equal(t, "Route conflict detected. Multiple files have the same name: routes/about", body.Error)

	resp, err = http.Get(ts.URL + "/manifest")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `role="alert"`)
}

func TestManifestPage(t *testing.T) {
	_, ts := newTestServer(t, "routes/index.tsx", "islands/Counter.tsx")

	resp, err := http.Get(ts.URL + "/manifest")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Contains(t, body, `data-kind="page"`)
	assert.Contains(t, body, `data-kind="island"`)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "healthy", health["status"])
	checks, ok := health["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, checks, "manifest")
	assert.Contains(t, checks, "websocket")
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/counter/main/increment", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Contains(t, body, "buttonstudio_studio_counter_changes_total")
	assert.Contains(t, body, `route="/api/counter/{id}/increment"`)
}

func TestStaticAssets(t *testing.T) {
	_, ts := newTestServer(t)

	for _, asset := range []string{"/static/css/styles.css", "/static/js/island.js"} {
		resp, err := http.Get(ts.URL + asset)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, asset)
		assert.NotEmpty(t, readBody(t, resp))
	}

	resp, err := http.Get(ts.URL + "/static/missing.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	root := t.TempDir()
	cfg := testutils.CreateTestConfig(root)
	cfg.Server.Port = 8000
	cfg.Server.AllowedOrigins = []string{"https://studio.example.com"}
	s, err := New(cfg, Options{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		origin  string
		host    string
		allowed bool
	}{
		{"same host", "http://10.0.0.5:9000", "10.0.0.5:9000", true},
		{"localhost", "http://localhost:8000", "example.test", true},
		{"loopback", "http://127.0.0.1:8000", "example.test", true},
		{"configured", "https://studio.example.com", "example.test", true},
		{"other port", "http://localhost:9999", "example.test", false},
		{"foreign", "https://evil.example.com", "example.test", false},
		{"missing", "", "example.test", false},
		{"bad scheme", "file://localhost:8000", "example.test", false},
		{"javascript", "javascript:alert(1)", "example.test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			err := s.checkOrigin(r)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCheckOriginAnyPort(t *testing.T) {
	s, err := New(testutils.CreateTestConfig(t.TempDir()), Options{})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Host = "example.test"
	r.Header.Set("Origin", "http://localhost:51234")
	assert.NoError(t, s.checkOrigin(r))
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s, ts := newTestServer(t)
	runHub(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(ts), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.com"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ctx context.Context, s *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	before := s.hub.Count()
	conn, _, err := websocket.Dial(ctx, wsURL(ts), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{ts.URL}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool { return s.hub.Count() == before+1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketBroadcastsStudioEvents(t *testing.T) {
	s, ts := newTestServer(t)
	runHub(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := dial(t, ctx, s, ts)
	second := dial(t, ctx, s, ts)

	resp, err := http.Post(ts.URL+"/api/counter/main/increment", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, ctx, conn)
		assert.Equal(t, MessageCounter, msg.Type)
		assert.Equal(t, "main", msg.ID)
		require.NotNil(t, msg.Value)
		assert.Equal(t, 4, *msg.Value)
	}

	resp, err = http.Post(ts.URL+"/api/audio/toggle", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	msg := readMessage(t, ctx, first)
	assert.Equal(t, MessageAudio, msg.Type)
	assert.Equal(t, studio.AudioRecording, msg.Status)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.WebSocketClients))
}

func TestHubDropsClosedClients(t *testing.T) {
	s, ts := newTestServer(t)
	runHub(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, s, ts)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	assert.Eventually(t, func() bool { return s.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastAfterStop(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		hub.Broadcast(UpdateMessage{Type: MessageReload})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a stopped hub")
	}
}

func TestStartAndShutdown(t *testing.T) {
	root := t.TempDir()
	testutils.Touch(t, root, "routes/index.tsx")

	s, err := New(testutils.CreateTestConfig(root), Options{})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx), "second shutdown is a no-op")

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestStartStopsWhenContextDone(t *testing.T) {
	root := testutils.CreateTempProject(t, "routes/index.tsx")
	s, err := New(testutils.CreateTestConfig(root), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	require.Eventually(t, func() bool { return s.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start kept serving after its context was cancelled")
	}
	_, err = http.Get("http://" + s.Addr() + "/health")
	assert.Error(t, err, "listener is closed")
}

func TestStartAfterShutdownReturns(t *testing.T) {
	s, err := New(testutils.CreateTestConfig(t.TempDir()), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Shutdown(context.Background()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background()) }()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
		assert.Empty(t, s.Addr())
	case <-time.After(5 * time.Second):
		t.Fatal("Start served after Shutdown")
	}
}

func TestDevModeRegeneratesManifest(t *testing.T) {
	root := t.TempDir()
	testutils.Touch(t, root, "routes/index.tsx")

	s, err := New(testutils.CreateTestConfig(root), Options{Dev: true})
	require.NoError(t, err)
	require.NotNil(t, s.watcher)

	go func() { _ = s.Start(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	manifestPath := s.pipeline.ManifestPath()
	require.Eventually(t, func() bool {
		_, err := os.Stat(manifestPath)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond, "initial manifest written")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://" + s.Addr()}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	testutils.Touch(t, root, "routes/about.tsx")

	msg := readMessage(t, ctx, conn)
	assert.Equal(t, MessageReload, msg.Type)

	testutils.WaitForFile(t, manifestPath, 2*time.Second, func(b []byte) bool {
		return strings.Contains(string(b), `"./routes/about.tsx"`)
	})
}
