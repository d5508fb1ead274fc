// Package main serves the in-memory auth API stand-in so authprobe can run
// without the real service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/authprobe/mockauth"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr          string
		secret        string
		registerLimit int
		accessTTL     time.Duration
		logLevel      string
	)

	def := mockauth.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "mock-auth",
		Short: "Serve an in-memory auth API for authprobe",
		Long: `Serve an in-memory implementation of the auth API under /auth.

Accounts and tokens live in memory and are lost on exit.

Examples:
  mock-auth                          # Listen on :8080
  mock-auth --register-limit 0       # Disable the registration rate limit
  mock-auth --access-ttl 30s         # Short-lived access tokens
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := def
			cfg.Secret = []byte(secret)
			cfg.RegisterLimit = registerLimit
			cfg.AccessTTL = accessTTL
			cfg.Logger = newLogger(logLevel)
			return serve(cmd.Context(), addr, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&secret, "secret", string(def.Secret), "HMAC secret for access tokens")
	cmd.Flags().IntVar(&registerLimit, "register-limit", def.RegisterLimit, "Registrations per IP per hour (0 disables)")
	cmd.Flags().DurationVar(&accessTTL, "access-ttl", def.AccessTTL, "Access token lifetime")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func serve(parent context.Context, addr string, cfg mockauth.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mock := mockauth.New(cfg)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mock.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		cfg.Logger.Info("Mock auth service listening",
			slog.String("addr", addr),
			slog.String("base_path", mockauth.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	cfg.Logger.Info("Shutting down mock auth service", slog.Int("users", mock.UserCount()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
