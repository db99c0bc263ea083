package api

import (
	"crypto/subtle"
	"net/http"
)

// RequireAPIKey wraps next so that every request must carry key in header.
//
// When key is empty all requests pass through. A missing or incorrect key
// yields 401 with a JSON error body.
func RequireAPIKey(header, key string, next http.Handler) http.Handler {
	if key == "" {
		return next
	}
	want := []byte(key)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(header)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
