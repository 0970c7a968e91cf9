// Package server exposes the inference service over HTTP/JSON.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YuminosukeSato/heartrisk/internal/config"
	"github.com/YuminosukeSato/heartrisk/internal/inference"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// maxBodyBytes bounds prediction request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server routes HTTP requests to an inference.Service.
type Server struct {
	echo   *echo.Echo
	svc    *inference.Service
	cfg    config.ServerConfig
	logger log.Logger
}

// New builds the HTTP server. gatherer backs /metrics; nil disables the route.
func New(svc *inference.Service, gatherer prometheus.Gatherer, cfg config.ServerConfig) *Server {
	s := &Server{
		echo:   echo.New(),
		svc:    svc,
		cfg:    cfg,
		logger: log.GetLoggerWithName("server"),
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.accessLog)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisablePrintStack: true,
	}))

	e.GET("/health", s.health)
	e.POST("/predict", s.predict)
	e.POST("/predict-with-attribution", s.predictWithAttribution)
	e.POST("/predict-with-shap", s.predictWithAttribution)
	e.GET("/model/info", s.modelInfo)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.echo,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrapf(err, "listen on %s", s.cfg.Addr)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Health())
}

func (s *Server) predict(c echo.Context) error {
	req, err := s.decode(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Predict(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) predictWithAttribution(c echo.Context) error {
	req, err := s.decode(c)
	if err != nil {
		return err
	}
	res, err := s.svc.PredictWithAttribution(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) modelInfo(c echo.Context) error {
	info, err := s.svc.Info()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

// decode reads the request body. An unusable body is reported as such only
// when a model is loaded; otherwise the client learns the model is missing.
func (s *Server) decode(c echo.Context) (*inference.Request, error) {
	req, err := decodeRequest(c)
	if err != nil {
		if rerr := s.svc.Ready(); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}
	return req, nil
}

// decodeRequest reads a JSON prediction request, naming the offending field
// when a value has the wrong type.
func decodeRequest(c echo.Context) (*inference.Request, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return nil, errors.NewValidationError("body", "unreadable request body", nil)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.NewValidationError("body", "request body is required", nil)
	}

	var req inference.Request
	if err := json.Unmarshal(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, errors.NewValidationError(typeErr.Field, "must be a "+jsonKind(typeErr.Type), typeErr.Value)
		}
		return nil, errors.NewValidationError("body", "malformed JSON", nil)
	}
	return &req, nil
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "number"
	case reflect.String:
		return "string"
	default:
		return t.String()
	}
}

// statusFor maps an error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Message()
	}

	if errors.Is(err, errors.ErrModelUnavailable) {
		return http.StatusServiceUnavailable, (&errors.ModelUnavailableError{}).Message()
	}

	var pe *errors.PredictionError
	if errors.As(err, &pe) {
		return http.StatusInternalServerError, pe.Message()
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", err,
			log.RequestIDKey, c.Response().Header().Get(echo.HeaderXRequestID),
			"status", code,
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn("Failed to write error response", "error", err.Error())
	}
}

func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			status, _ = statusFor(err)
		}
		s.logger.Info("Request handled",
			log.RequestIDKey, c.Response().Header().Get(echo.HeaderXRequestID),
			"method", c.Request().Method,
			"path", c.Path(),
			"status", status,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
		return err
	}
}
