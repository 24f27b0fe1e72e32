package middleware

import (
	"net/http"
	"strings"
)

// The admin UI reads Retry-After after a 429 and quotes X-Request-ID in bug reports, so both are
// exposed to scripts.
var (
	corsMethods        = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}, ", ")
	corsRequestHeaders = strings.Join([]string{"Authorization", "Content-Type", "Accept", RequestIDHeader}, ", ")
	corsExposedHeaders = strings.Join([]string{"Retry-After", RequestIDHeader}, ", ")
)

const corsMaxAge = "86400"

// CORS allows credentialed browser requests from allowedOrigins. Trailing slashes and blanks in
// the list are ignored. Preflight requests are answered with 204 and never reach next.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Add("Vary", "Origin")
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Set("Access-Control-Allow-Credentials", "true")
			hdr.Set("Access-Control-Expose-Headers", corsExposedHeaders)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed[origin] {
				hdr.Set("Access-Control-Allow-Methods", corsMethods)
				hdr.Set("Access-Control-Allow-Headers", corsRequestHeaders)
				hdr.Set("Access-Control-Max-Age", corsMaxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
