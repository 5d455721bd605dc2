// Package api exposes the model service over HTTP with gin.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/propval/pkg/errors"
	"github.com/YuminosukeSato/propval/pkg/log"
)

// Predictor is the part of service.ModelService the transport needs.
type Predictor interface {
	Predict(payload map[string]any) (float64, error)
}

// Server is the prediction HTTP server.
type Server struct {
	predictor Predictor
	engine    *gin.Engine
	http      *http.Server
	logger    log.Logger
}

// NewServer wires the routes. /health is public; /predict requires apiKey.
func NewServer(predictor Predictor, apiKey, host string, port int) *Server {
	s := &Server{
		predictor: predictor,
		logger:    log.GetLoggerWithName("api"),
	}

	engine := gin.New()
	engine.Use(Recovery(s.logger), RequestLogger(s.logger))
	engine.GET("/health", s.health)
	engine.POST("/predict", APIKeyAuth(apiKey), s.predict)
	s.engine = engine

	s.http = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "http.addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return errors.WithStack(s.http.Shutdown(ctx))
}
