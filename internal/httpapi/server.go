package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/intake/internal/blob"
	"horse.fit/intake/internal/bulk"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/globaltime"
	"horse.fit/intake/internal/resolution"
)

const (
	defaultPageSize  = 25
	maxPageSize      = 200
	maxUploadBody    = 64 << 20
	requestBodyLimit = 1 << 20
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SessionTTL      time.Duration
	SessionCookie   string
	SessionSecure   bool
	AllowedOrigins  []string
}

type Server struct {
	pool        *db.Pool
	blobs       *blob.Store
	resolutions *resolution.Service
	coordinator *bulk.Coordinator
	logger      zerolog.Logger
	opts        Options

	// authStore overrides the pool-backed session store in tests.
	authStore authStore

	// baseCtx outlives individual requests; bulk batches started over HTTP
	// run against it so a closed client connection does not abort them.
	baseCtx context.Context
}

func NewServer(pool *db.Pool, blobs *blob.Store, resolutions *resolution.Service, coordinator *bulk.Coordinator, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8870
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 120 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	sessionTTL := opts.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	cookie := strings.TrimSpace(opts.SessionCookie)
	if cookie == "" {
		cookie = "intake_session"
	}

	return &Server{
		pool:        pool,
		blobs:       blobs,
		resolutions: resolutions,
		coordinator: coordinator,
		logger:      logger,
		baseCtx:     context.Background(),
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			SessionTTL:      sessionTTL,
			SessionCookie:   cookie,
			SessionSecure:   opts.SessionSecure,
			AllowedOrigins:  opts.AllowedOrigins,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}
	s.baseCtx = ctx

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/logout", s.handleLogout)

	authed := api.Group("", s.requireAuth())
	authed.GET("/auth/me", s.handleMe)
	authed.POST("/auth/change-password", s.handleChangePassword)

	authed.GET("/stats", s.handleStats)

	authed.POST("/candidates/check", s.handleCheckDuplicates)
	authed.POST("/candidates", s.handleCreateCandidate)
	authed.GET("/candidates", s.handleListCandidates)
	authed.GET("/candidates/:candidate_id", s.handleCandidateDetail)
	authed.GET("/candidates/:candidate_id/activity", s.handleCandidateActivity)
	authed.POST("/candidates/:candidate_id/merge", s.handleMerge)
	authed.POST("/candidates/:candidate_id/link", s.handleLink)
	authed.POST("/candidates/not-duplicate", s.handleNotDuplicate)

	authed.POST("/batches", s.handleCreateBatch)
	authed.GET("/batches", s.handleListBatches)
	authed.GET("/batches/:batch_id", s.handleBatchDetail)
	authed.POST("/batches/:batch_id/items/:item_id/retry", s.handleRetryItem)
	authed.POST("/batches/:batch_id/items/:item_id/resolve", s.handleResolveItem)

	authed.GET("/files/cv/*", s.handleServeCV)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("intake api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("intake api stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "intake",
		"time":    globaltime.UTC(),
	})
}

// handleServeCV streams a stored CV file. The wildcard path is the blob key.
func (s *Server) handleServeCV(c echo.Context) error {
	key := strings.TrimPrefix(c.Param("*"), "/")
	if key == "" {
		return failValidation(c, map[string]string{"key": "is required"})
	}

	reader, err := s.blobs.Open(key)
	if err != nil {
		return failNotFound(c, "File not found")
	}
	defer reader.Close()

	return c.Stream(http.StatusOK, "application/octet-stream", reader)
}

func decodeJSONBody(c echo.Context, target any) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, requestBodyLimit)
	defer body.Close()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("unexpected trailing content")
	}
	return nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseID(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("must be a positive integer id")
	}
	return value, nil
}
