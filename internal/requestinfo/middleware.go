// internal/requestinfo/middleware.go
//
// HTTP middleware that attaches a *Visitor to each request.
//
/*
Context
--------
The handler sits on the /api/track-visitor route.  For every request it:

  1. Extracts the left-most client IP from X-Forwarded-For or X-Real-Ip,
     falling back to `r.RemoteAddr`.
  2. Parses the User-Agent header and Accept-Language list.
  3. Performs a GeoLite2 lookup when a database is configured.
  4. Stores the `*Visitor` in the request context under an unexported
     key, so the handler can merge it with the JSON body.

Instrumentation
---------------
Each invocation logs a DEBUG line with client IP, country, browser,
device class, and bot flag.

Notes
-----
  • Look-ups are read-only, so the middleware is safe under concurrency.
  • Oxford commas, two spaces after periods.  No em dash.
*/
package requestinfo

import (
	"context"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

/*──────────────────────────── middleware ───────────────────────────────────*/

// Enrich wraps an http.Handler, attaches *Visitor, and forwards.
func (res *Resolver) Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ""
		if addr := ClientIP(r); addr != nil {
			ip = addr.String()
		}
		v := res.Describe(ip, r.UserAgent(), r.Header.Get("Accept-Language"), "")

		zap.S().Debugw("visitor info",
			"ip", v.IP,
			"country", v.Geo.CountryISO,
			"browser", v.UA.Browser,
			"device", v.UA.Device,
			"bot", v.UA.IsBot,
		)

		ctx := context.WithValue(r.Context(), ctxKey{}, &v)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

/*──────────────────────────── client IP helper ─────────────────────────────*/

// ClientIP extracts the left-most address from X-Forwarded-For or
// X-Real-Ip, falling back to r.RemoteAddr ("ip:port").
func ClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
