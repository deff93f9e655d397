package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/yanizio/reveal/internal/cache"
	"github.com/yanizio/reveal/internal/gate"
	"github.com/yanizio/reveal/internal/record"
	"github.com/yanizio/reveal/internal/store/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *recorder) TryNotify(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

type staticStore struct{ name string }

func (s staticStore) Name() string   { return s.name }
func (s staticStore) Degraded() bool { return false }

type fixture struct {
	clk   *clock
	store *memory.Store
	gate  *gate.Gate
	notes *recorder
	deps  Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	f := &fixture{
		clk:   &clock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
		store: memory.New(),
		notes: &recorder{},
	}
	f.gate = gate.New(f.store, log, gate.WithClock(f.clk.Now))
	f.deps = Deps{
		Gate:       f.gate,
		Bots:       f.store,
		Store:      staticStore{name: "memory"},
		Notifier:   f.notes,
		Dedupe:     cache.New(16, time.Minute),
		Env:        "test",
		TelegramOK: true,
		Log:        log,
		Now:        f.clk.Now,
	}
	return f
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = "192.0.2.1:4321"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	out := map[string]any{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad json %q: %v", method, target, rr.Body.String(), err)
		}
	}
	return rr.Code, out
}

func TestCountdownLifecycle(t *testing.T) {
	f := newFixture(t)
	h := NewRouter(f.deps)

	code, body := do(t, h, http.MethodGet, "/api/countdown", "")
	if code != http.StatusOK || body["hasActiveCountdown"] != false || body["success"] != true {
		t.Fatalf("idle: %d %v", code, body)
	}
	if body["message"] != "No active countdown" || body["timestamp"] == nil {
		t.Fatalf("idle body: %v", body)
	}

	if _, err := f.gate.SetCountdown(context.Background(), f.clk.Now().Add(time.Hour), "alice"); err != nil {
		t.Fatal(err)
	}
	_, body = do(t, h, http.MethodGet, "/api/countdown", "")
	if body["hasActiveCountdown"] != true || body["isAccessible"] != false {
		t.Fatalf("running: %v", body)
	}
	if body["timeLeft"] != float64(time.Hour.Milliseconds()) || body["setBy"] != "alice" {
		t.Fatalf("running fields: %v", body)
	}

	_, body = do(t, h, http.MethodGet, "/api/access-status", "")
	if body["isAccessible"] != false || body["reason"] != "Countdown active" {
		t.Fatalf("access running: %v", body)
	}

	f.clk.Advance(2 * time.Hour)
	_, body = do(t, h, http.MethodGet, "/api/countdown", "")
	if body["countdownEnded"] != true || body["hasActiveCountdown"] != false {
		t.Fatalf("ended: %v", body)
	}

	_, body = do(t, h, http.MethodGet, "/api/access-status", "")
	if body["isAccessible"] != true || body["reason"] != "No countdown active" {
		t.Fatalf("after expiry: %v", body)
	}
}

func TestAccessStatusReportsEnd(t *testing.T) {
	f := newFixture(t)
	h := NewRouter(f.deps)

	target := f.clk.Now().Add(time.Minute)
	if _, err := f.gate.SetCountdown(context.Background(), target, ""); err != nil {
		t.Fatal(err)
	}
	_, body := do(t, h, http.MethodGet, "/api/access-status", "")
	if body["setBy"] != nil {
		t.Fatalf("setBy should be null: %v", body)
	}

	f.clk.Advance(time.Minute)
	_, body = do(t, h, http.MethodGet, "/api/access-status", "")
	if body["isAccessible"] != true || body["reason"] != "Countdown ended" {
		t.Fatalf("ended: %v", body)
	}
	if body["endedAt"] != target.Format(time.RFC3339Nano) {
		t.Fatalf("endedAt = %v", body["endedAt"])
	}
}

type brokenGate struct{}

func (brokenGate) Evaluate(context.Context) (gate.State, error) {
	return gate.State{}, errors.New("boom")
}

func TestGateFailureIs500(t *testing.T) {
	f := newFixture(t)
	f.deps.Gate = brokenGate{}
	h := NewRouter(f.deps)

	for _, path := range []string{"/api/countdown", "/api/access-status"} {
		code, body := do(t, h, http.MethodGet, path, "")
		if code != http.StatusInternalServerError || body["success"] != false {
			t.Fatalf("%s: %d %v", path, code, body)
		}
		if msg, _ := body["error"].(string); msg == "" || strings.Contains(msg, "boom") {
			t.Fatalf("%s: error = %q", path, msg)
		}
	}
}

func TestBotStatus(t *testing.T) {
	f := newFixture(t)
	h := NewRouter(f.deps)

	_, body := do(t, h, http.MethodGet, "/api/bot-status", "")
	if body["isActive"] != false || body["siteStatus"] != "offline" {
		t.Fatalf("absent: %v", body)
	}

	if _, err := f.store.CreateBotStatus(context.Background(), record.NewBotStatus{}); err != nil {
		t.Fatal(err)
	}
	_, body = do(t, h, http.MethodGet, "/api/bot-status", "")
	if body["isActive"] != true || body["siteStatus"] != "online" || body["id"] == "" {
		t.Fatalf("present: %v", body)
	}
}

func TestTrackVisitor(t *testing.T) {
	f := newFixture(t)
	h := NewRouter(f.deps)

	code, body := do(t, h, http.MethodPost, "/api/track-visitor", `{}`)
	if code != http.StatusBadRequest || body["error"] != "Missing required visitor information" {
		t.Fatalf("empty body: %d %v", code, body)
	}

	code, body = do(t, h, http.MethodPost, "/api/track-visitor", `{not json`)
	if code != http.StatusBadRequest {
		t.Fatalf("bad json: %d %v", code, body)
	}

	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	code, body = do(t, h, http.MethodPost, "/api/track-visitor",
		`{"timestamp":"2026-10-19T09:00:00Z","userAgent":"`+ua+`"}`)
	if code != http.StatusOK || body["message"] != "Visitor tracked successfully" {
		t.Fatalf("tracked: %d %v", code, body)
	}
	info, _ := body["visitorInfo"].(map[string]any)
	if info["ip"] != "192.0.2.1" || info["timestamp"] != "2026-10-19T09:00:00Z" {
		t.Fatalf("visitorInfo: %v", info)
	}
	if f.notes.count() != 1 || !strings.Contains(f.notes.texts[0], "192.0.2.1") {
		t.Fatalf("notes: %v", f.notes.texts)
	}

	// Same IP inside the window: tracked, not notified.
	code, _ = do(t, h, http.MethodPost, "/api/track-visitor", `{"userAgent":"curl/8.0"}`)
	if code != http.StatusOK || f.notes.count() != 1 {
		t.Fatalf("dedupe: code=%d notes=%d", code, f.notes.count())
	}

	// Body IP wins over the transport address.
	_, body = do(t, h, http.MethodPost, "/api/track-visitor", `{"userAgent":"curl/8.0","ip":"198.51.100.7"}`)
	info, _ = body["visitorInfo"].(map[string]any)
	if info["ip"] != "198.51.100.7" || f.notes.count() != 2 {
		t.Fatalf("body ip: %v notes=%d", info, f.notes.count())
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	f.deps.Started = f.clk.Now()
	h := NewRouter(f.deps)
	f.clk.Advance(90 * time.Second)

	code, body := do(t, h, http.MethodGet, "/health", "")
	if code != http.StatusOK || body["status"] != "ok" || body["store"] != "memory" {
		t.Fatalf("health: %d %v", code, body)
	}
	if body["uptime"] != float64(90) || body["env"] != "test" {
		t.Fatalf("health fields: %v", body)
	}

	code, body = do(t, h, http.MethodGet, "/ready", "")
	if code != http.StatusOK || body["ready"] != true {
		t.Fatalf("ready: %d %v", code, body)
	}

	f.deps.TelegramOK = false
	code, body = do(t, NewRouter(f.deps), http.MethodGet, "/ready", "")
	checks, _ := body["checks"].(map[string]any)
	if code != http.StatusServiceUnavailable || body["ready"] != false || checks["telegram"] != false {
		t.Fatalf("not ready: %d %v", code, body)
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	f := newFixture(t)
	h := NewRouter(f.deps)

	code, body := do(t, h, http.MethodGet, "/api/nope?x=1", "")
	if code != http.StatusNotFound || body["error"] != "Route not found" || body["path"] != "/api/nope?x=1" {
		t.Fatalf("%d %v", code, body)
	}
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t)
	f.deps.StaticDir = dir
	h := NewRouter(f.deps)

	for path, want := range map[string]string{
		"/app.js":        "console.log(1)",
		"/some/deep/url": "<html>app</html>",
		"/":              "<html>app</html>",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK || rr.Body.String() != want {
			t.Fatalf("%s: %d %q", path, rr.Code, rr.Body.String())
		}
	}

	code, _ := do(t, h, http.MethodGet, "/api/missing", "")
	if code != http.StatusNotFound {
		t.Fatalf("api miss served static: %d", code)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	NewRouter(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("headers: %v", rr.Header())
	}
}
