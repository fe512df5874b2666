package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with timeouts suited to a collection API whose
// slowest path is a bulk submission held open for at most a few seconds.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
