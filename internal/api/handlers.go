// internal/api/handlers.go
//
// Endpoint handlers.  Field names follow the JSON contract the site
// already consumes, so they stay camelCase.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/yanizio/reveal/internal/metrics"
	"github.com/yanizio/reveal/internal/requestinfo"
)

/*──────────────────────────── gate views ───────────────────────────────────*/

func (h *handler) countdown(w http.ResponseWriter, r *http.Request) {
	metrics.StatusQueriesTotal.WithLabelValues("countdown").Inc()

	st, err := h.Gate.Evaluate(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Failed to read countdown", err)
		return
	}

	switch {
	case st.Ended:
		h.respond(w, http.StatusOK, map[string]any{
			"hasActiveCountdown": false,
			"countdownEnded":     true,
			"message":            "Countdown has ended",
		})
	case st.Accessible:
		h.respond(w, http.StatusOK, map[string]any{
			"hasActiveCountdown": false,
			"message":            "No active countdown",
		})
	default:
		h.respond(w, http.StatusOK, map[string]any{
			"hasActiveCountdown": true,
			"targetDate":         st.TargetDate,
			"timeLeft":           st.Remaining.Milliseconds(),
			"setBy":              nullable(st.SetBy),
			"isAccessible":       false,
		})
	}
}

func (h *handler) accessStatus(w http.ResponseWriter, r *http.Request) {
	metrics.StatusQueriesTotal.WithLabelValues("access-status").Inc()

	st, err := h.Gate.Evaluate(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Failed to read access status", err)
		return
	}

	switch {
	case st.Ended:
		h.respond(w, http.StatusOK, map[string]any{
			"isAccessible": true,
			"reason":       "Countdown ended",
			"endedAt":      st.TargetDate,
		})
	case st.Accessible:
		h.respond(w, http.StatusOK, map[string]any{
			"isAccessible": true,
			"reason":       "No countdown active",
		})
	default:
		h.respond(w, http.StatusOK, map[string]any{
			"isAccessible": false,
			"reason":       "Countdown active",
			"targetDate":   st.TargetDate,
			"timeLeft":     st.Remaining.Milliseconds(),
			"setBy":        nullable(st.SetBy),
		})
	}
}

func (h *handler) botStatus(w http.ResponseWriter, r *http.Request) {
	metrics.StatusQueriesTotal.WithLabelValues("bot-status").Inc()

	bs, err := h.Bots.GetBotStatus(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "Failed to read bot status", err)
		return
	}
	if bs == nil {
		h.respond(w, http.StatusOK, map[string]any{
			"isActive":   false,
			"siteStatus": "offline",
		})
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"id":         bs.ID,
		"isActive":   bs.IsActive,
		"lastPing":   bs.LastPing,
		"siteStatus": bs.SiteStatus,
	})
}

/*──────────────────────────── visitors ─────────────────────────────────────*/

type trackRequest struct {
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent"`
	IP        string `json:"ip"`
}

func (h *handler) trackVisitor(w http.ResponseWriter, r *http.Request) {
	var body trackRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if body.Timestamp == "" && body.UserAgent == "" {
		h.fail(w, http.StatusBadRequest, "Missing required visitor information", nil)
		return
	}

	// Enrich has already described the transport-level visitor; body
	// values take precedence.
	var v requestinfo.Visitor
	if base := requestinfo.FromContext(r.Context()); base != nil {
		v = *base
	}
	if body.IP != "" || body.UserAgent != "" {
		ip, ua := body.IP, body.UserAgent
		if ip == "" {
			ip = v.IP
		}
		if ua == "" {
			ua = r.UserAgent()
		}
		v = h.Visitors.Describe(ip, ua, r.Header.Get("Accept-Language"), "")
	}
	if body.Timestamp != "" {
		v.Timestamp = body.Timestamp
	}

	notified := false
	if h.Dedupe == nil || h.Dedupe.AddIfAbsent(v.IP, struct{}{}) {
		notified = h.Notifier.TryNotify(v.Line())
	}
	metrics.VisitorsTotal.WithLabelValues(strconv.FormatBool(notified)).Inc()
	h.Log.Infow("visitor tracked",
		"ip", v.IP,
		"browser", v.UA.Browser,
		"bot", v.UA.IsBot,
		"notified", notified,
	)

	h.respond(w, http.StatusOK, map[string]any{
		"message":     "Visitor tracked successfully",
		"visitorInfo": v,
	})
}

/*──────────────────────────── probes ───────────────────────────────────────*/

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.stamp(),
		"uptime":    h.Now().Sub(h.Started).Seconds(),
		"env":       h.Env,
		"store":     h.Store.Name(),
		"degraded":  h.Store.Degraded(),
	})
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"storage":     true,
		"telegram":    h.TelegramOK,
		"environment": true,
	}
	if _, err := h.Bots.GetBotStatus(r.Context()); err != nil {
		h.Log.Warnw("storage readiness check failed", "err", err)
		checks["storage"] = false
	}

	ready := true
	for _, ok := range checks {
		ready = ready && ok
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	h.respond(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

// nullable maps "" to JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// stamp formats the envelope timestamp in UTC with millisecond precision.
func (h *handler) stamp() string {
	return h.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
