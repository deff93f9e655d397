// internal/api/respond.go
//
// JSON envelope helpers.
package api

import (
	"encoding/json"
	"net/http"
)

// respond writes {success, timestamp, ...data}.  success mirrors the
// status code.
func (h *handler) respond(w http.ResponseWriter, status int, data map[string]any) {
	body := make(map[string]any, len(data)+2)
	for k, v := range data {
		body[k] = v
	}
	body["success"] = status < http.StatusBadRequest
	body["timestamp"] = h.stamp()
	writeJSON(w, status, body)
}

// fail writes the error envelope.  err is logged, never returned to the
// client.
func (h *handler) fail(w http.ResponseWriter, status int, msg string, err error) {
	if status >= http.StatusInternalServerError {
		h.Log.Errorw("api error", "status", status, "msg", msg, "err", err)
	} else {
		h.Log.Debugw("api rejected request", "status", status, "msg", msg, "err", err)
	}
	writeJSON(w, status, map[string]any{
		"success":   false,
		"error":     msg,
		"timestamp": h.stamp(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
