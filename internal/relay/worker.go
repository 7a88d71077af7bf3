package relay

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixcyberchallenge/submission-relay/internal/audit"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	"github.com/aixcyberchallenge/submission-relay/internal/progress"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

const (
	MsgFinished = "All uploads completed."
	MsgClosed   = "Upload thread ended."
)

type Options struct {
	// Remote paths are <PathPrefix>/<owner>/<relative path>
	PathPrefix string
	// Pause between files so the remote API is not hammered
	FileDelay time.Duration
	// Pause before cleanup so the stream consumer can drain
	GraceDelay time.Duration
}

// Relays the files of one submission to the remote store, reporting progress on its channel
type Worker struct {
	upserter Upserter
	fs       afero.Fs
	opts     Options
	metrics  workerMetrics
}

func NewWorker(upserter Upserter, fs afero.Fs, opts Options) *Worker {
	return &Worker{
		upserter: upserter,
		fs:       fs,
		opts:     opts,
		metrics:  newWorkerMetrics(),
	}
}

func (w *Worker) RemotePath(owner, rel string) string {
	return path.Join(w.opts.PathPrefix, owner, rel)
}

// Runs the whole upload protocol for sub. Per-file failures are reported as upload_error
// events and never abort the run. The only returned errors come from the channel itself.
//
// Staging cleanup and the closed event always happen, even after a failure. Cancelling ctx
// only shortens the grace delay, uploads in flight and the remaining files still go out.
func (w *Worker) Run(ctx context.Context, sub types.Submission, ch *progress.Channel) (err error) {
	ctx, span := tracer.Start(ctx, "Worker.Run", trace.WithAttributes(
		attribute.String("submission.id", sub.ID),
		attribute.String("team", sub.Owner),
		attribute.Int("files", len(sub.Files)),
	))
	defer span.End()

	log := logger.ForSubmission(sub.ID, sub.Owner)
	uploadCtx := context.WithoutCancel(ctx)

	defer func() {
		w.cleanup(ctx, log, sub, ch)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "progress channel failed")
			return
		}
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "relayed submission")
	}()

	total := len(sub.Files)
	ch.SetTotal(total)

	if err := ch.Send(types.InfoEvent(fmt.Sprintf("%d files to upload.", total))); err != nil {
		log.ErrorContext(ctx, "failed to send progress event", "error", err)
		return err
	}

	uploaded, failed := 0, 0
	for i, rel := range sub.Files {
		index := i + 1
		remote := w.RemotePath(sub.Owner, rel)
		local := filepath.Join(sub.StagingRoot, filepath.FromSlash(rel))

		if err := ch.Send(types.UploadStartEvent(remote, index, total)); err != nil {
			log.ErrorContext(ctx, "failed to send progress event", "error", err)
			return err
		}

		result, upsertErr := w.upserter.Upsert(uploadCtx, local, remote)
		w.metrics.record(uploadCtx, sub.Owner, upsertErr == nil)

		var evt types.ProgressEvent
		if upsertErr != nil {
			failed++
			log.WarnContext(ctx, "failed to upload file",
				"file", remote,
				"status", result.StatusCode,
				"error", upsertErr,
			)
			span.AddEvent("upload_error", trace.WithAttributes(
				attribute.String("file", remote),
				attribute.Int("status", result.StatusCode),
			))
			evt = types.UploadErrorEvent(remote, result.StatusCode, result.Response)
		} else {
			uploaded++
			log.DebugContext(ctx, "uploaded file", "file", remote, "status", result.StatusCode)
			evt = types.UploadDoneEvent(remote, result.StatusCode)
		}

		if err := ch.Send(evt); err != nil {
			log.ErrorContext(ctx, "failed to send progress event", "error", err)
			return err
		}

		ch.SetCurrent(index)
		sleep(uploadCtx, w.opts.FileDelay)
	}

	if err := ch.Send(types.FinishedEvent(MsgFinished)); err != nil {
		log.ErrorContext(ctx, "failed to send progress event", "error", err)
		return err
	}

	audit.LogSubmissionFinished(
		audit.Context{Team: sub.Owner, SubmissionID: &sub.ID},
		total,
		uploaded,
		failed,
	)
	log.InfoContext(ctx, "finished submission", "uploaded", uploaded, "failed", failed)

	return nil
}

func (w *Worker) cleanup(
	ctx context.Context,
	log *slog.Logger,
	sub types.Submission,
	ch *progress.Channel,
) {
	sleep(ctx, w.opts.GraceDelay)

	if err := w.fs.RemoveAll(sub.StagingRoot); err != nil {
		log.ErrorContext(ctx, "failed to remove staging dir", "staging", sub.StagingRoot, "error", err)
	}

	if err := ch.Send(types.ClosedEvent(MsgClosed)); err != nil {
		log.ErrorContext(ctx, "failed to send closed event", "error", err)
	}
}

// Waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
