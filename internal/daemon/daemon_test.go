package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chunkq/internal/api"
	"chunkq/internal/config"
	"chunkq/internal/daemon"
	"chunkq/internal/index"
	"chunkq/internal/logging"
	"chunkq/internal/push"
	"chunkq/internal/services"
	"chunkq/internal/testsupport"
)

func newDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *config.Config) {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithQueue(10, 1, 2, 1)}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, cfg
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func TestDaemonStartStop(t *testing.T) {
	d, cfg := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Running() || d.Addr() == "" {
		t.Fatalf("expected running daemon with listener, addr=%q", d.Addr())
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	st := d.Status(ctx)
	if !st.Running || len(st.Processors) != 2 || st.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected status %+v", st)
	}

	d.Stop()
	if d.Running() || d.Addr() != "" {
		t.Fatal("expected daemon stopped")
	}
	for _, p := range d.Status(ctx).Processors {
		if p.Running {
			t.Fatalf("processor %s still running", p.Index)
		}
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	first, cfg := newDaemon(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cfg2 := *cfg
	cfg2.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, &cfg2)
	second, err := daemon.New(&cfg2, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		second.Stop()
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestDaemonStartFailsPreflight(t *testing.T) {
	d, cfg := newDaemon(t)
	blocker := filepath.Join(testsupport.BaseDir(cfg), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Paths.LogDir = blocker

	err := d.Start(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if d.Running() {
		t.Fatal("daemon must not run after failed preflight")
	}
}

func TestAPIEnqueueCompilesAndServesChunk(t *testing.T) {
	d, _ := newDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	body, _ := json.Marshal(api.EnqueueRequest{Index: index.ItemKeysName, Keys: []string{"X", "X", "Y"}})
	resp, err := http.Post(srv.URL+"/api/queue", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/queue: %v", err)
	}
	var enq api.EnqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&enq); err != nil {
		t.Fatalf("decode enqueue: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || len(enq.Rows) != 3 {
		t.Fatalf("unexpected enqueue response %d %+v", resp.StatusCode, enq)
	}

	var chunk api.ChunkResponse
	waitFor(t, 5*time.Second, func() bool {
		resp, err := http.Get(srv.URL + "/api/chunks/itemkeys/X")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		return json.NewDecoder(resp.Body).Decode(&chunk) == nil
	})
	if chunk.Chunk.Version != 1 || chunk.Chunk.ChunkKey != "X" {
		t.Fatalf("unexpected chunk %+v", chunk.Chunk)
	}
	var payload index.ItemChunk
	if err := json.Unmarshal(chunk.Chunk.Data, &payload); err != nil {
		t.Fatalf("decode chunk data: %v", err)
	}
	if len(payload.Events) != 1 {
		t.Fatalf("expected duplicates collapsed into one event, got %v", payload.Events)
	}

	waitFor(t, 5*time.Second, func() bool {
		resp, err := http.Get(srv.URL + "/api/queue?index=itemkeys")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var list api.QueueListResponse
		return json.NewDecoder(resp.Body).Decode(&list) == nil && len(list.Rows) == 0
	})

	resp, err = http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	var st api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if !st.Running || len(st.Processors) != 2 || !st.Push.Enabled {
		t.Fatalf("unexpected status %+v", st)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(metrics), `chunkq_processed_total{index="itemkeys"} 2`) {
		t.Fatalf("expected processed counter in metrics, got:\n%s", metrics)
	}
}

func TestAPIValidation(t *testing.T) {
	d, _ := newDaemon(t)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown index", http.MethodPost, "/api/queue", `{"index":"bogus","keys":["a"]}`, http.StatusBadRequest},
		{"no keys", http.MethodPost, "/api/queue", `{"index":"itemkeys","keys":[]}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/api/queue", `{"index":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/queue", `{"index":"itemkeys","keys":["a"],"x":1}`, http.StatusBadRequest},
		{"empty key", http.MethodPost, "/api/queue", `{"index":"itemkeys","keys":["  "]}`, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/queue?limit=-1", "", http.StatusBadRequest},
		{"missing chunk", http.MethodGet, "/api/chunks/itemkeys/nope", "", http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/api/status", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, strings.NewReader(tc.body))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestAPIRequiresToken(t *testing.T) {
	d, _ := newDaemon(t, func(c *config.Config) { c.Paths.APIToken = "s3cret" })
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	for _, path := range []string{"/api/status", "/api/queue", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 without token on %s, got %d", path, resp.StatusCode)
		}

		req, _ := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		resp, err = http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 with token on %s, got %d", path, resp.StatusCode)
		}
	}
}

func TestWebSocketReceivesCompiledChunk(t *testing.T) {
	d, _ := newDaemon(t)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?topic=" + push.Topic(index.ItemKeysName, "X")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, 2*time.Second, func() bool { return d.Hub().Subscribers() == 1 })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := d.Enqueue(context.Background(), index.ItemKeysName, []string{"X"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var n push.Notification
	if err := conn.ReadJSON(&n); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if n.Index != index.ItemKeysName || n.ChunkKey != "X" || n.Version != 1 {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestPushDisabledHasNoWebSocketRoute(t *testing.T) {
	d, _ := newDaemon(t, func(c *config.Config) { c.Push.Enabled = false })
	if d.Hub() != nil {
		t.Fatal("expected no hub when push is disabled")
	}
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
