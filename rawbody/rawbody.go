// Package rawbody acquires the raw bytes of an HTTP request body.
//
// Request signatures are computed over the body exactly as it was sent, so the
// body must be read once, before any decoding, and kept as bytes. An upstream
// handler may have already done this and attached the bytes to the request
// context with NewContext; readers prefer those bytes over the stream.
package rawbody

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrRead is returned when the request body cannot be read completely.
var ErrRead = errors.New("failed to read request body")

// Reader reads the complete raw body of a request.
type Reader interface {
	Read(req *http.Request) ([]byte, error)
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying the already buffered body.
func NewContext(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, contextKey{}, body)
}

// FromContext returns the buffered body attached by NewContext.
func FromContext(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(contextKey{}).([]byte)
	return b, ok
}

// StreamReader reads request bodies, preferring a buffered body attached to the
// request context.
type StreamReader struct{}

// Read returns the buffered body if present, or reads req.Body to EOF and
// closes it.
func (StreamReader) Read(req *http.Request) ([]byte, error) {
	if b, ok := FromContext(req.Context()); ok {
		return b, nil
	}
	if req.Body == nil || req.Body == http.NoBody {
		return []byte{}, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return b, nil
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(req *http.Request) ([]byte, error)

// Read calls f(req).
func (f ReaderFunc) Read(req *http.Request) ([]byte, error) {
	return f(req)
}

// errBody replays a read failure to later readers of the request body.
type errBody struct {
	err error
}

func (e *errBody) Read([]byte) (int, error) { return 0, e.err }
func (e *errBody) Close() error             { return nil }

// Buffer is a middleware that reads the request body once and attaches it to
// the request context. The request body is replaced by an in-memory copy so
// handlers that read the stream see the same bytes. When reading fails, the
// replacement body returns the original error and nothing is attached.
func Buffer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		b, err := StreamReader{}.Read(req)
		if err != nil {
			req.Body = &errBody{err: err}
			next.ServeHTTP(rw, req)
			return
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		next.ServeHTTP(rw, req.WithContext(NewContext(req.Context(), b)))
	})
}
