// Package middleware provides HTTP middleware for the tutoring API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/ashureev/tutor-engine/internal/identity"
)

const corsMethods = "GET, POST, PUT, OPTIONS"

// CORS returns middleware that lets browser clients call the tutoring API
// from allowedOrigins. The session header is always exposed; extra response
// headers a client must read are listed in expose.
func CORS(allowedOrigins []string, expose ...string) func(http.Handler) http.Handler {
	wildcard := false
	explicit := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		explicit[o] = struct{}{}
	}
	exposed := strings.Join(append([]string{identity.SessionHeaderName}, expose...), ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			_, trusted := explicit[origin]
			if origin != "" && (trusted || wildcard) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", "Content-Type, "+identity.SessionHeaderName)
				h.Set("Access-Control-Expose-Headers", exposed)
				// Credentials are granted to explicitly listed origins only.
				if trusted {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
