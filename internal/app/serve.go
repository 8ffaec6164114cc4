package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/intake/internal/cli"
	"horse.fit/intake/internal/config"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/globaltime"
	"horse.fit/intake/internal/httpapi"
	"horse.fit/intake/internal/logging"
)

const sessionSweepInterval = time.Hour

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8870, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dbCancel()

	pool, err := db.NewPool(dbCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := ensureDefaultAdmin(dbCtx, pool, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("default admin bootstrap failed")
		fmt.Fprintf(os.Stderr, "Default admin bootstrap failed: %v\n", err)
		return 1
	}

	resolutions, blobs, err := newResolutionService(cfg, pool, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	coordinator := newBulkCoordinator(cfg, pool, resolutions, blobs, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	go sweepExpiredSessions(ctx, pool, logger)

	srv := httpapi.NewServer(pool, blobs, resolutions, coordinator, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		SessionTTL:      time.Duration(cfg.SessionTTLHours) * time.Hour,
		SessionCookie:   cfg.SessionCookieName,
		SessionSecure:   cfg.SessionCookieSecure,
		AllowedOrigins:  cfg.CORSAllowedOriginsList(),
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}

// sweepExpiredSessions trims expired login sessions until ctx is cancelled.
func sweepExpiredSessions(ctx context.Context, pool *db.Pool, logger zerolog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := pool.DeleteExpiredSessions(ctx, globaltime.UTC())
			if err != nil {
				if ctx.Err() == nil {
					logger.Error().Err(err).Msg("session sweep failed")
				}
				continue
			}
			if deleted > 0 {
				logger.Debug().Int64("deleted", deleted).Msg("removed expired sessions")
			}
		}
	}
}
