package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"

	"github.com/aixcyberchallenge/submission-relay/cmd/relayctl/cmds"
	"github.com/aixcyberchallenge/submission-relay/internal/exiterr"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	otelrelay "github.com/aixcyberchallenge/submission-relay/internal/otel"
)

var tracer = otel.Tracer("github.com/aixcyberchallenge/submission-relay/cmd/relayctl")

func runApp(ctx context.Context) int {
	useOTLP, err := strconv.ParseBool(os.Getenv("USE_OTLP"))
	if err != nil {
		useOTLP = false
	}

	shutdown, err := otelrelay.SetupOTelSDK(ctx, useOTLP)
	if err != nil {
		logger.Logger.Warn("failed to setup otel sdk", "error", err)
	}
	defer func() {
		if fail := shutdown(ctx); fail != nil {
			logger.Logger.Warn("no clean shutdown for otel", "error", fail)
		}
	}()

	ctx, span := tracer.Start(ctx, "relayctl")
	defer span.End()

	err = cmds.Execute(ctx)
	if err != nil {
		logger.Logger.Error("error executing subcommands", "error", err)
	}

	return exiterr.Code(err)
}

func main() {
	logger.InitSlog()
	logger.LogLevel.Set(slog.LevelWarn)

	os.Exit(runApp(context.Background()))
}
