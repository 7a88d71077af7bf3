package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Extractor = (*ZipExtractor)(nil)

type ZipExtractor struct{}

func NewZipExtractor() *ZipExtractor {
	return &ZipExtractor{}
}

func (*ZipExtractor) Extract(
	ctx context.Context,
	fs afero.Fs,
	archive io.ReaderAt,
	size int64,
	dest string,
) error {
	_, span := tracer.Start(ctx, "ZipExtractor.Extract", trace.WithAttributes(
		attribute.String("dest", dest),
		attribute.Int64("size", size),
	))
	defer span.End()

	r, err := zip.NewReader(archive, size)
	if errors.Is(err, zip.ErrInsecurePath) {
		err = fmt.Errorf("%w: %w", ErrUnsafePath, err)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCorruptArchive, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read zip directory")
		return err
	}

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(dest, f.Name)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrCorruptArchive, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "unsafe entry")
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := mkdirAll(fs, target); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to create directory")
				return err
			}
		case mode.IsRegular():
			if err := extractZipFile(fs, f, target); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to extract file")
				return err
			}
		default:
			// links and devices are not relayed
			span.AddEvent("skipped_entry", trace.WithAttributes(attribute.String("name", f.Name)))
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "extracted zip")
	return nil
}

func extractZipFile(fs afero.Fs, f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}
	defer rc.Close()

	if err := writeFile(fs, target, f.Mode(), rc); err != nil {
		// checksum and inflate failures surface from the copy
		if isFormatError(err) {
			return fmt.Errorf("%w: %w", ErrCorruptArchive, err)
		}
		return err
	}

	return nil
}
