package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/focusroom/go/internal/roomrpc"
)

func setupServer(config *Config, services *Services) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port),
		Handler:           newHandler(config, services),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func newHandler(config *Config, services *Services) http.Handler {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Focusroom-Error-Code", "Grpc-Status", "Grpc-Message"},
	})

	if services.RoomRPC != nil {
		path, handler := roomrpc.NewServiceHandler(services.RoomRPC)
		mux.Handle(path, handler)
	}

	services.Gateway.RegisterRoutes(mux)

	mux.Handle("GET /health", newHealthChecker(services, config))

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}
