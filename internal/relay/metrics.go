package relay

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

type workerMetrics struct {
	uploaded metric.Int64Counter
	failed   metric.Int64Counter
}

func newWorkerMetrics() workerMetrics {
	uploaded, err := meter.Int64Counter(
		"relay.files.uploaded",
		metric.WithDescription("Files written to the remote store"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		logger.Logger.Warn("failed to create counter", "name", "relay.files.uploaded", "error", err)
	}

	failed, err := meter.Int64Counter(
		"relay.files.failed",
		metric.WithDescription("Files the remote store rejected"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		logger.Logger.Warn("failed to create counter", "name", "relay.files.failed", "error", err)
	}

	return workerMetrics{uploaded: uploaded, failed: failed}
}

func (m workerMetrics) record(ctx context.Context, team string, ok bool) {
	opt := metric.WithAttributes(attribute.String("team", team))
	if ok {
		if m.uploaded != nil {
			m.uploaded.Add(ctx, 1, opt)
		}
		return
	}
	if m.failed != nil {
		m.failed.Add(ctx, 1, opt)
	}
}
