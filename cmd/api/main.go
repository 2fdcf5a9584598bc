package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"conversation-insights-go/internal/config"
	"conversation-insights-go/internal/console"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/shell"
)

func main() {
	log := logger.New()
	log.WithField("service", "conversation-insights-go").Info("starting service")

	cfg, err := config.Load(os.Getenv("INSIGHTS_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.WithField("api_base", cfg.APIBase).
		WithField("upload_timeout", cfg.UploadTimeout.String()).
		Info("backend configured")

	sh := shell.New(cfg, log)
	// banner is best effort; the backend may come up after us
	sh.RefreshStats(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := console.NewHTTPServer(fmt.Sprintf(":%s", cfg.Port), console.New(sh, log).Handler())
	if err := console.Serve(ctx, srv, log); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
	sh.Wait()
}
