package runtime

import (
	"net/http"
	"time"
)

// NewHTTPServer creates the HTTP server around the assembled router.
func NewHTTPServer(config Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         config.ServerAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
