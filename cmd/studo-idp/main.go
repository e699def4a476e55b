// Command studo-idp runs the in-memory development identity service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shmulls/Studo/internal/config"
	"github.com/Shmulls/Studo/internal/devidp"
	"github.com/Shmulls/Studo/internal/logger"
	"github.com/Shmulls/Studo/oauth2"
)

func main() {
	cfg, err := config.LoadIDP()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	}))
	log := logger.WithComponent(slog.Default(), "studo-idp")

	users := devidp.NewUserStore()
	if cfg.SeedEmail != "" {
		if _, err := users.CreateUser(cfg.SeedEmail, cfg.SeedPassword, cfg.SeedFirstName, cfg.SeedLastName); err != nil {
			log.Error("failed to seed user", logger.Error(err))
			os.Exit(1)
		}
		log.Info("seeded user", slog.String("email", cfg.SeedEmail))
	}

	providers := oauth2.NewRegistry(
		oauth2.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, ""),
		oauth2.NewGithubProvider(cfg.GithubClientID, cfg.GithubClientSecret, ""),
	)
	if names := providers.Names(); len(names) > 0 {
		log.Info("oauth providers enabled", slog.Any("providers", names))
	} else {
		log.Warn("no oauth providers configured, only password sign-in is available")
	}

	idp := devidp.NewServer(cfg.BaseURL,
		devidp.WithUserStore(users),
		devidp.WithProviders(providers),
		devidp.WithLogger(slog.Default()))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           idp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown failed", logger.Error(err))
		}
	}()

	log.Info("starting identity service", slog.String("address", cfg.Addr), slog.String("base_url", cfg.BaseURL))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to start server", logger.Error(err))
		os.Exit(1)
	}
}
