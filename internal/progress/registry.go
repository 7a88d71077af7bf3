package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

var tracer = otel.Tracer("github.com/aixcyberchallenge/submission-relay/internal/progress")

var ErrDuplicateSubmission = errors.New("submission id is already registered")

// Maps submission ids to their progress channels.
//
// Entries are removed by the stream consumer after the closed event, or by Reap once
// the worker is done and the entry outlived the ttl.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	ttl      time.Duration
	now      func() time.Time
}

// A zero or negative `ttl` disables reaping
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *Registry) Register(submissionID, owner string) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[submissionID]; ok {
		return nil, ErrDuplicateSubmission
	}

	ch := newChannel(submissionID, owner, r.now())
	r.channels[submissionID] = ch
	return ch, nil
}

func (r *Registry) Lookup(submissionID string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[submissionID]
	return ch, ok
}

func (r *Registry) Remove(submissionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.channels, submissionID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.channels)
}

// Drops entries whose worker already sent its closed event and that are older than the ttl.
// Returns the number of removed entries.
func (r *Registry) Reap(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, ch := range r.channels {
		if now.Sub(ch.Created()) < r.ttl || !ch.Closed() {
			continue
		}

		delete(r.channels, id)
		removed++
	}

	return removed
}

// Reaps every `interval` until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		logger.Logger.WarnContext(ctx, "progress channel reaping disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			_, span := tracer.Start(ctx, "Registry.Reap", trace.WithAttributes(
				attribute.String("ttl", r.ttl.String()),
			))
			removed := r.Reap(t)
			span.SetAttributes(attribute.Int("removed", removed))
			span.SetStatus(codes.Ok, "reaped abandoned channels")
			span.End()

			if removed > 0 {
				logger.Logger.InfoContext(ctx, "reaped abandoned progress channels", "removed", removed)
			}
		}
	}
}
