package middleware

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
)

// DefaultGzipMinSize is the smallest response body worth compressing
const DefaultGzipMinSize = 1024

// Gzip compresses responses to clients that accept it. WebSocket upgrades
// pass through untouched.
func Gzip(next http.Handler, minSize int) (http.Handler, error) {
	if minSize <= 0 {
		minSize = DefaultGzipMinSize
	}
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(minSize))
	if err != nil {
		return nil, fmt.Errorf("gzip wrapper: %w", err)
	}
	compressed := wrap(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	}), nil
}
