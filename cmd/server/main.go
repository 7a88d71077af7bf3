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

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	otellib "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	servermiddleware "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/middleware"
	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/routes"
	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/routes/admin"
	routesv1 "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/routes/v1"
	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/extract"
	"github.com/aixcyberchallenge/submission-relay/internal/github"
	"github.com/aixcyberchallenge/submission-relay/internal/ledger"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	"github.com/aixcyberchallenge/submission-relay/internal/otel"
	"github.com/aixcyberchallenge/submission-relay/internal/progress"
	"github.com/aixcyberchallenge/submission-relay/internal/relay"
	"github.com/aixcyberchallenge/submission-relay/internal/upload"
)

const name string = "github.com/aixcyberchallenge/submission-relay/cmd/server"

var tracer = otellib.Tracer(name)

type server struct {
	router       *echo.Echo
	config       *config.Config
	supervisor   *relay.Supervisor
	registry     *progress.Registry
	otelShutdown func(context.Context) error
}

func initServer(ctx context.Context) (*server, error) {
	server := new(server)

	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize server config: %w", err)
	}
	server.config = cfg

	shutdownOTel, err := otel.SetupOTelSDK(ctx, cfg.Logging.UseOTLP)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL SDK: %w", err)
	}
	defer func() {
		// Something failed to initialize, make sure everything gets flushed to the server
		if server.otelShutdown == nil {
			otelShutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				time.Second*time.Duration(cfg.GracefulShutdownSecs),
			)
			defer cancel()

			if err = shutdownOTel(otelShutdownCtx); err != nil {
				logger.Logger.Error("failed to flush otel data", "error", err)
			}
		}
	}()

	// workers must not inherit the init span
	baseCtx := ctx

	ctx, span := tracer.Start(ctx, "initServer")
	defer span.End()

	logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))

	fs := afero.NewOsFs()

	githubClient, err := github.Create(cfg.Github, fs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct github client")
		return nil, fmt.Errorf("failed to construct github client: %w", err)
	}

	span.AddEvent("initialized github client")

	var upserter relay.Upserter = githubClient
	if cfg.Relay.UpsertRetries > 0 {
		upserter = relay.NewRetryUpserter(githubClient, cfg.Relay.UpsertRetries)
	}

	span.AddEvent("initialized upserter")

	led, err := ledger.Open(cfg, fs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open submission ledger")
		return nil, fmt.Errorf("failed to open submission ledger: %w", err)
	}

	span.AddEvent("opened submission ledger")

	archiver, err := upload.FromConfig(cfg.Archive)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to construct archiver")
		return nil, fmt.Errorf("failed to construct archiver: %w", err)
	}
	if archiver == nil {
		logger.Logger.WarnContext(ctx, "raw bundles will not be archived")
	}

	if err := server.build(baseCtx, fs, upserter, led, archiver); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error building router")
		return nil, err
	}

	span.AddEvent("created echo router")

	server.otelShutdown = shutdownOTel

	return server, nil
}

// Wires the upload pipeline and the HTTP routes around the given backends
func (s *server) build(
	ctx context.Context,
	fs afero.Fs,
	upserter relay.Upserter,
	led ledger.Ledger,
	archiver upload.Uploader,
) error {
	worker := relay.NewWorker(upserter, fs, relay.Options{
		PathPrefix: s.config.Github.PathPrefix,
		FileDelay:  s.config.Relay.FileDelay,
		GraceDelay: s.config.Relay.GraceDelay,
	})
	s.supervisor = relay.NewSupervisor(ctx, worker)
	s.registry = progress.NewRegistry(s.config.Relay.StreamTTL)

	v1Handler := routesv1.NewHandler(
		s.config,
		fs,
		extract.NewUnpacker(fs),
		s.registry,
		led,
		s.supervisor,
		archiver,
	)
	adminHandler := admin.NewHandler(s.config, led)
	middlewareHandler := servermiddleware.NewHandler(s.config.Teams)

	e, err := routes.BuildEcho(logger.Logger)
	if err != nil {
		return fmt.Errorf("error building router: %w", err)
	}

	v1Handler.AddRoutes(e, middlewareHandler)
	adminHandler.AddRoutes(e, middlewareHandler)

	s.router = e
	return nil
}

func (s *server) Start(ctx context.Context) error {
	go s.registry.Run(ctx, s.config.Relay.ReapInterval)

	logger.Logger.Info("Starting services...")

	err := s.router.Start(s.config.ListenAddress)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *server) Shutdown() error {
	var errs error

	ctx, cancelTimeout := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(s.config.GracefulShutdownSecs),
	)
	defer cancelTimeout()

	// open event streams only end once their worker passed its grace delay
	s.supervisor.Stop()

	if err := s.router.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, err)
	}

	if err := s.supervisor.Shutdown(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to drain upload workers: %w", err))
	}

	if s.otelShutdown != nil {
		errs = errors.Join(errs, s.otelShutdown(ctx))
	}

	return errs
}

func main() {
	ctx, cancelSignal := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	logger.InitSlog()

	server, err := initServer(ctx)
	if err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	errch := make(chan error, 1)
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Got shutdown signal!")
		errch <- server.Shutdown()
		close(errch)
	}()

	if err := server.Start(ctx); err != nil {
		logger.Logger.Error(err.Error())
		cancelSignal()
		os.Exit(1)
	}

	if err := <-errch; err != nil {
		logger.Logger.Error("Error shutting down server", "error", err)
	}

	cancelSignal()
}
