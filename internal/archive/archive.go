package archive

import (
	"context"
	"errors"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixcyberchallenge/submission-relay/internal/audit"
	"github.com/aixcyberchallenge/submission-relay/internal/upload"
)

var tracer = otel.Tracer("github.com/aixcyberchallenge/submission-relay/internal/archive")

const keyPrefix = "bundles"

// Raw upload as received from a team, before unpacking
type Bundle struct {
	SubmissionID string
	Team         string
	Filename     string
	ContentType  string
	Reader       io.ReadSeeker
	Size         int64
}

// Stores the bundle content addressed and emits a file_archived audit record.
// Returns the object key.
func ArchiveBundle(ctx context.Context, u upload.Uploader, bundle *Bundle) (string, error) {
	ctx, span := tracer.Start(ctx, "ArchiveBundle", trace.WithAttributes(
		attribute.String("submission.id", bundle.SubmissionID),
		attribute.String("team", bundle.Team),
		attribute.Int64("size", bundle.Size),
	))
	defer span.End()

	if bundle.Reader == nil {
		err := errors.New("tried to archive a bundle without a reader")
		span.RecordError(err)
		span.SetStatus(codes.Error, "can't archive a bundle without a reader")
		return "", err
	}

	contentType := bundle.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName, err := upload.Hashed(ctx, u, bundle.Reader, bundle.Size, keyPrefix, upload.Object{
		ContentType: contentType,
		Metadata: map[string]string{
			"team":          bundle.Team,
			"submission-id": bundle.SubmissionID,
			"filename":      bundle.Filename,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload bundle")
		return "", err
	}

	identifier, err := u.StoreIdentifier(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get identifier")
		return "", err
	}

	span.AddEvent("generating audit log message")
	audit.LogFileArchived(
		audit.Context{Team: bundle.Team, SubmissionID: &bundle.SubmissionID},
		identifier,
		objectName,
		audit.EntitySubmissionBundle,
		bundle.SubmissionID,
	)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "archived bundle")
	return objectName, nil
}
