package middleware

import (
	"fmt"
	"net/http"
)

// MaxBodySize caps JSON request bodies. Requests that declare a larger
// Content-Length are refused up front; the rest are read through
// http.MaxBytesReader so decoding fails once the cap is crossed.
// Upload routes enforce their own, larger limit.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, fmt.Sprintf("request body exceeds %d bytes", maxBytes), http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
