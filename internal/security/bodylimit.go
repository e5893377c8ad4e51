package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// DefaultCallbackBodyLimit caps inbound processor callbacks.
const DefaultCallbackBodyLimit int64 = 64 << 10

// BodyLimit rejects request bodies larger than Max bytes with HTTP 413.
type BodyLimit struct {
	Max int64
}

// Middleware buffers the body up to Max so handlers that parse forms or JSON
// never read past the limit.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}
		buf, err := io.ReadAll(io.LimitReader(r.Body, b.Max+1))
		_ = r.Body.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if int64(len(buf)) > b.Max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}
