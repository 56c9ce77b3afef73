// Package http serves activity predictions over HTTP and websockets.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"fitlife/config"
)

// ServerConfig is the listener and middleware configuration.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	RateLimit      float64
	Burst          int
	MaxBodyBytes   int64
}

// DefaultServerConfig mirrors the defaults of the config package.
func DefaultServerConfig() ServerConfig {
	return ServerConfigFrom(config.Default().HTTP)
}

// ServerConfigFrom converts the http section of the configuration file.
func ServerConfigFrom(c config.HTTPConfig) ServerConfig {
	return ServerConfig{
		Port:           c.Port,
		Timeout:        c.Timeout,
		AllowedOrigins: c.AllowedOrigins,
		RateLimit:      c.RateLimit,
		Burst:          c.Burst,
		MaxBodyBytes:   c.MaxBodyBytes,
	}
}

// Server is the HTTP server for an API.
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// NewServer wires the API behind the middleware chain.
func NewServer(cfg ServerConfig, api *API, logger *zap.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, api, logger),
			ReadHeaderTimeout: cfg.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// NewHandler returns the routed handler. The websocket route skips the
// timeout and body limit, which would break long lived connections.
func NewHandler(cfg ServerConfig, api *API, logger *zap.Logger) http.Handler {
	apiMux := http.NewServeMux()
	api.Register(apiMux)

	common := []Middleware{
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(cfg.AllowedOrigins),
		RateLimitMiddleware(cfg.RateLimit, cfg.Burst),
	}
	rest := Chain(append(common,
		RequestSizeMiddleware(cfg.MaxBodyBytes),
		TimeoutMiddleware(cfg.Timeout),
	)...)
	stream := Chain(common...)

	root := http.NewServeMux()
	root.Handle("GET /api/ws/predict", stream(NewPredictStream(api, cfg.AllowedOrigins, cfg.MaxBodyBytes)))
	root.Handle("/", rest(apiMux))
	return root
}

// Start listens and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.String("ws", "/api/ws/predict"))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return errors.Wrap(s.server.Shutdown(ctx), "shutdown")
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
