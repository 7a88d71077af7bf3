package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/aixcyberchallenge/submission-relay/internal/upload")

// Describes a blob to be written
type Object struct {
	// Key within the bucket or container
	Key         string
	ContentType string
	// Free form tags stored next to the blob (team, submission id)
	Metadata map[string]string
}

//go:generate mockgen -destination ./mock/mock.go -package mock . Uploader

// Blob store that raw submission bundles are archived to
type Uploader interface {
	// Create / Overwrite the blob at `obj.Key`
	Upload(ctx context.Context, reader io.ReadSeeker, length int64, obj Object) error
	// Check if a blob exists (focused on preventing uploading the same bundle twice, not authoritative)
	Exists(ctx context.Context, key string) (bool, error)
	// Bucket / container name, for logging and auditing
	StoreIdentifier(ctx context.Context) (string, error)
}

// Uploads reader under `<prefix>/<sha256 of contents>` (CAS) and returns that key.
//
// Seeks to 0 before hashing and before uploading. Skips the upload when the key already exists.
func Hashed(
	ctx context.Context,
	u Uploader,
	reader io.ReadSeeker,
	length int64,
	prefix string,
	obj Object,
) (string, error) {
	ctx, span := tracer.Start(ctx, "UploadHashed", trace.WithAttributes(
		attribute.String("prefix", prefix),
		attribute.Int64("length", length),
	))
	defer span.End()

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to seek to start")
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(h, reader); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to hash reader")
		return "", err
	}
	obj.Key = path.Join(prefix, hex.EncodeToString(h.Sum(nil)))
	span.SetAttributes(attribute.String("key", obj.Key))

	exists, err := u.Exists(ctx, obj.Key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to check if blob exists")
		return "", err
	}

	if exists {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "found existing blob")
		return obj.Key, nil
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to seek to start")
		return "", err
	}

	if err := u.Upload(ctx, reader, length, obj); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload blob")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded blob by hash")
	return obj.Key, nil
}
