package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/adapters/config"
	"github.com/aldhinn/Fintel/internal/health"
	"github.com/aldhinn/Fintel/pkg/logger"
)

// maxBodyBytes bounds decoded request bodies
const maxBodyBytes = 1 << 20

// invalidBody stands in for a body that is not valid JSON. Handlers that
// require a list or an object reject it like any other wrong shape.
type invalidBody struct{}

// Server exposes the REST endpoints over echo
type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer wires routes for every endpoint plus health probes
func NewServer(cfg *config.ServerConfig, deps Deps, checker *health.Checker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Debug("request handled", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	api := e.Group("/api")
	for _, endpoint := range []string{EndpointSymbols, EndpointRequest, EndpointData} {
		api.Any("/"+endpoint, Adapt(MustHandler(endpoint, deps)))
	}

	if checker != nil {
		e.GET("/health", checker.Liveness)
		e.GET("/ready", checker.Readiness)
	}

	return &Server{
		echo: e,
		addr: ":" + cfg.Port,
	}
}

// Handler exposes the underlying http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Stop is called
func (s *Server) Start() error {
	logger.Info("🌐 REST server starting", zap.String("addr", s.addr))

	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping REST server...")
	return s.echo.Shutdown(ctx)
}

// Adapt turns a Handler into an echo route. GET requests pass their query
// parameters as an object; other methods pass the decoded JSON body.
func Adapt(h Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		body, status := h.Process(req.Context(), req.Method, decodeRequest(c))
		if body == nil {
			return c.NoContent(status)
		}
		return c.JSON(status, body)
	}
}

func decodeRequest(c echo.Context) any {
	req := c.Request()

	if req.Method == http.MethodGet {
		params := make(map[string]any)
		for key, values := range c.QueryParams() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
		return params
	}

	if req.Body == nil {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil || len(raw) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		logger.Debug("request body is not valid json",
			zap.String("uri", req.RequestURI),
			zap.Error(err),
		)
		return invalidBody{}
	}

	return decoded
}
