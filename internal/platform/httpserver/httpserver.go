package httpserver

import (
	"net/http"
	"time"
)

// New builds the engine's HTTP server. WriteTimeout leaves headroom over the
// router's 30s request timeout so the timeout middleware answers first.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
