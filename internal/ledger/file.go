package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensure FileLedger implements Ledger interface.
var _ Ledger = (*FileLedger)(nil)

// Ledger kept as a single JSON object `{"<team>": bool}` that is rewritten whole on every change
type FileLedger struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewFileLedger(fs afero.Fs, path string) *FileLedger {
	return &FileLedger{fs: fs, path: path}
}

// A missing file is an empty ledger
func (l *FileLedger) load() (map[string]bool, error) {
	state := make(map[string]bool)

	raw, err := afero.ReadFile(l.fs, l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	if len(raw) == 0 {
		return state, nil
	}

	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode ledger %s: %w", l.path, err)
	}

	return state, nil
}

func (l *FileLedger) store(state map[string]bool) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := l.fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create ledger dir: %w", err)
		}
	}

	tmp := l.path + ".tmp"
	if err := afero.WriteFile(l.fs, tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	if err := l.fs.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}

	return nil
}

func (l *FileLedger) Submitted(ctx context.Context, team string) (bool, error) {
	_, span := tracer.Start(ctx, "FileLedger.Submitted", trace.WithAttributes(
		attribute.String("team", team),
	))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load ledger")
		return false, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "read lock")
	return state[team], nil
}

func (l *FileLedger) Acquire(ctx context.Context, team string) (bool, error) {
	_, span := tracer.Start(ctx, "FileLedger.Acquire", trace.WithAttributes(
		attribute.String("team", team),
	))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load ledger")
		return false, err
	}

	if state[team] {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "lock already held")
		return false, nil
	}

	state[team] = true
	if err := l.store(state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store ledger")
		return false, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "acquired lock")
	return true, nil
}

func (l *FileLedger) Reset(ctx context.Context, team string) error {
	_, span := tracer.Start(ctx, "FileLedger.Reset", trace.WithAttributes(
		attribute.String("team", team),
	))
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load ledger")
		return err
	}

	state[team] = false
	if err := l.store(state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store ledger")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "reset lock")
	return nil
}

func (l *FileLedger) Snapshot(ctx context.Context) (map[string]bool, error) {
	_, span := tracer.Start(ctx, "FileLedger.Snapshot")
	defer span.End()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load ledger")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "loaded ledger")
	return state, nil
}
