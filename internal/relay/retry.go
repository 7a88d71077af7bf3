package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixcyberchallenge/submission-relay/internal/github"
)

// Ensure RetryUpserter implements Upserter interface.
var _ Upserter = (*RetryUpserter)(nil)

// Meta upserter that retries throttled and server side failures
type RetryUpserter struct {
	upserter Upserter
	backoff  func() retry.Backoff
}

func NewRetryUpserterBackoff(upserter Upserter, backoff func() retry.Backoff) *RetryUpserter {
	return &RetryUpserter{
		upserter: upserter,
		backoff:  backoff,
	}
}

func NewRetryUpserter(upserter Upserter, retries uint64) *RetryUpserter {
	return &RetryUpserter{
		upserter: upserter,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(500 * time.Millisecond)
			b = retry.WithMaxRetries(retries, b)
			return b
		},
	}
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (r *RetryUpserter) Upsert(
	ctx context.Context,
	localPath, remotePath string,
) (github.UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "RetryUpserter.Upsert", trace.WithAttributes(
		attribute.String("remotePath", remotePath),
	))
	defer span.End()

	var result github.UpsertResult
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryUpserter.Upsert.Retry")
		defer span.End()

		var err error
		result, err = r.upserter.Upsert(ctx, localPath, remotePath)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upsert")
			if retryableStatus(result.StatusCode) {
				return retry.RetryableError(err)
			}
			return err
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert")
		return result, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "upserted")
	return result, nil
}
