package extract

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/aixcyberchallenge/submission-relay/internal/extract")

var (
	ErrCorruptArchive    = errors.New("corrupt archive")
	ErrDestinationExists = errors.New("destination already exists")
	ErrUnsafePath        = errors.New("archive entry escapes destination")
)

// Extract a single archive format into an existing directory
type Extractor interface {
	Extract(ctx context.Context, fs afero.Fs, archive io.ReaderAt, size int64, dest string) error
}
