package http

import (
	"net/http"
	"time"
)

func NewServer(addr string, cfg RouterConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
