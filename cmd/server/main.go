package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ggrighi15/fusione-dev-sub001/internal/app"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	"github.com/ggrighi15/fusione-dev-sub001/internal/logging"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/internal/scheduler"
	"github.com/ggrighi15/fusione-dev-sub001/server"
	"github.com/ggrighi15/fusione-dev-sub001/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running server: %s\n", err)
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(c.App)
	displayAppname(c.App.AppName)
	if c.OAuth.GeneratedSecret {
		logger.Warn().Msg("AUTH_TOKEN_SECRET not set, generated a throwaway DEV secret")
	}

	provider := sdkmetric.NewMeterProvider()
	defer func() {
		_ = provider.Shutdown(context.Background())
	}()
	m, err := metrics.New(provider)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, c.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
	}()

	a, err := app.New(c, backend, app.WithLogger(logger), app.WithMetrics(m))
	if err != nil {
		return err
	}
	if _, err := a.Bootstrap(ctx, c.Bootstrap); err != nil {
		return err
	}

	handler := server.New(c, a.Services(), server.WithLogger(logger), server.WithMetrics(m))
	tasks := scheduler.New(a.Tasks(handler.RateLimiter()), scheduler.WithLogger(logger))
	tasks.Start(ctx)
	defer tasks.Stop()

	httpServer := &http.Server{
		Addr:              c.App.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer, logger)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
