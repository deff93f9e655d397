// internal/api/router.go
//
// Status API router.
//
/*
Context
--------
The public site polls these endpoints to decide whether to show the
countdown overlay or the revealed content.  Every /api response is a JSON
envelope `{success, timestamp, ...}`; errors use `{success:false, error,
timestamp}`.

Middleware order
----------------
  1. chi RequestID and Recoverer.
  2. ForceHTTPS (when enabled), then security headers.
  3. RequestLogger, which only logs /api traffic.

Routes
------
  GET  /api/countdown       countdown view of the gate
  GET  /api/access-status   accessibility view of the gate
  GET  /api/bot-status      stored bot heartbeat
  POST /api/track-visitor   visitor notification (deduped per IP)
  GET  /health              liveness
  GET  /ready               readiness (503 when a check fails)
  GET  /metrics             Prometheus

Unknown /api paths answer 404 JSON.  Everything else is served from the
static bundle with an index.html fallback, or 404 when none is configured.
*/
package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/reveal/internal/cache"
	"github.com/yanizio/reveal/internal/gate"
	"github.com/yanizio/reveal/internal/middleware"
	"github.com/yanizio/reveal/internal/record"
	"github.com/yanizio/reveal/internal/requestinfo"
)

// Gate is the read side of the countdown gate.
type Gate interface {
	Evaluate(ctx context.Context) (gate.State, error)
}

// BotStatusReader serves /api/bot-status and the storage readiness check.
type BotStatusReader interface {
	GetBotStatus(ctx context.Context) (*record.BotStatus, error)
}

// StoreInfo describes the live backend.  *store.Switch satisfies it.
type StoreInfo interface {
	Name() string
	Degraded() bool
}

// Notifier enqueues chat notifications without blocking.
type Notifier interface {
	TryNotify(text string) bool
}

// Deps collects everything the router needs.  Dedupe may be nil, which
// disables per-IP de-duplication.
type Deps struct {
	Gate     Gate
	Bots     BotStatusReader
	Store    StoreInfo
	Notifier Notifier
	Visitors *requestinfo.Resolver
	Dedupe   *cache.LRU

	Env string
	// TelegramOK is false when a bot token is configured but the bot
	// could not be started.
	TelegramOK bool
	StaticDir  string
	ForceHTTPS bool

	Log     *zap.SugaredLogger
	Now     func() time.Time
	Started time.Time
}

// Compile-time assertion: the gate satisfies the read interface.
var _ Gate = (*gate.Gate)(nil)

type handler struct {
	Deps
}

// NewRouter returns the complete HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Started.IsZero() {
		d.Started = d.Now()
	}
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	if d.Visitors == nil {
		d.Visitors = &requestinfo.Resolver{}
	}
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.ForceHTTPS(d.ForceHTTPS))
	r.Use(middleware.Security)
	r.Use(middleware.RequestLogger(d.Log))

	r.Route("/api", func(api chi.Router) {
		api.Get("/countdown", h.countdown)
		api.Get("/access-status", h.accessStatus)
		api.Get("/bot-status", h.botStatus)
		api.With(d.Visitors.Enrich).Post("/track-visitor", h.trackVisitor)
		api.NotFound(h.notFound)
		api.MethodNotAllowed(h.notFound)
	})

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(h.static)
	return r
}

/*──────────────────────────── fallbacks ────────────────────────────────────*/

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": "Route not found",
		"path":  r.URL.RequestURI(),
	})
}

// static serves files from StaticDir.  Paths without a matching file get
// index.html so client-side routes survive a reload.
func (h *handler) static(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || h.StaticDir == "" {
		h.notFound(w, r)
		return
	}
	name := filepath.Join(h.StaticDir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}
	index := filepath.Join(h.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		h.notFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}
