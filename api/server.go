package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pdfopt/observability"
)

const (
	DefaultPort        = "8080"
	DefaultMaxFileSize = 50 * 1024 * 1024
	DefaultTempDir     = "./temp"

	serverReadTimeout       = 30 * time.Second
	serverWriteTimeout      = 60 * time.Second
	serverIdleTimeout       = 60 * time.Second
	gracefulShutdownTimeout = 10 * time.Second
)

// ConfigFromEnv reads PORT, MAX_FILE_SIZE and TEMP_DIR, falling back to
// the defaults above.
func ConfigFromEnv(logger observability.Logger) *Config {
	cfg := &Config{
		Port:        DefaultPort,
		MaxFileSize: DefaultMaxFileSize,
		TempDir:     DefaultTempDir,
		Logger:      observability.Default(logger),
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxFileSize = n
		}
	}
	if v := os.Getenv("TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
	return cfg
}

// Serve runs the HTTP service until SIGINT/SIGTERM, then drains in-flight
// requests before returning.
func Serve(config *Config) error {
	log := observability.Default(config.Logger)

	r := gin.Default()
	SetupRoutes(r, config)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      r,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Info("server listening", observability.String("port", config.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
