// Package http exposes registration and health endpoints.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/strogmv/mailrelay/internal/pkg/errors"
)

const maxBodyBytes = 1 << 20

func decodeJSONRequest(r *http.Request, out any) error {
	if r.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func MaxBodySizeMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				errors.WriteError(w, r, errors.New(http.StatusRequestEntityTooLarge, "Payload Too Large", fmt.Sprintf("Request body too large (max %d bytes)", limit)))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
