package relay

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/aixcyberchallenge/submission-relay/internal/github"
)

var tracer = otel.Tracer("github.com/aixcyberchallenge/submission-relay/internal/relay")
var meter = otel.Meter("github.com/aixcyberchallenge/submission-relay/internal/relay")

//go:generate mockgen -destination ./mock/mock.go -package mock . Upserter

// Writes one staged file to the remote store, creating or updating it
type Upserter interface {
	Upsert(ctx context.Context, localPath, remotePath string) (github.UpsertResult, error)
}

// Ensure ContentsClient implements Upserter interface.
var _ Upserter = (*github.ContentsClient)(nil)
