package ledger

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/aixcyberchallenge/submission-relay/internal/ledger")

var ErrAlreadySubmitted = errors.New("team has already submitted")

//go:generate mockgen -destination ./mock/mock.go -package mock . Ledger

// Records which teams have submitted. Last write wins between Acquire and Reset.
type Ledger interface {
	// Whether the team currently holds a lock
	Submitted(ctx context.Context, team string) (bool, error)
	// Sets the team's lock. False means it was already held and nothing changed.
	Acquire(ctx context.Context, team string) (bool, error)
	// Clears the team's lock
	Reset(ctx context.Context, team string) error
	// Every known team and its lock state
	Snapshot(ctx context.Context) (map[string]bool, error)
}
