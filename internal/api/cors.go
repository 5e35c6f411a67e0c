package api

import (
	"net/http"
	"strings"
)

// CORS wraps next with a cross-origin policy. An origin list containing "*"
// (or an empty list) allows every origin. Preflight requests are answered
// with 204 and never reach next.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			hdr := w.Header()

			switch {
			case allowAll:
				hdr.Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				hdr.Add("Vary", "Origin")
				if _, ok := allowed[origin]; ok {
					hdr.Set("Access-Control-Allow-Origin", origin)
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			hdr.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			if reqHdr := r.Header.Get("Access-Control-Request-Headers"); reqHdr != "" {
				hdr.Add("Vary", "Access-Control-Request-Headers")
				hdr.Set("Access-Control-Allow-Headers", reqHdr)
			} else {
				hdr.Set("Access-Control-Allow-Headers", "Content-Type")
			}
			hdr.Set("Content-Length", "0")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
