package auth

import (
	"net/http"
)

// Middleware wraps next with API key enforcement for HTTP requests.
// Requests whose path is in exempt, and CORS preflight requests, skip the check.
func Middleware(mode, header, key string, exempt ...string) func(http.Handler) http.Handler {
	g := NewGuard(mode, header, key, exempt...)
	return func(next http.Handler) http.Handler {
		if g == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || g.Exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if err := g.Check(r.Header.Values(g.Header())); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"` + err.Error() + `"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
