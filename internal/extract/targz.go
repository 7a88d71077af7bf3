package extract

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Extractor = (*TarGzExtractor)(nil)

// .tar.gz extractor
type TarGzExtractor struct{}

func NewTarGzExtractor() *TarGzExtractor {
	return &TarGzExtractor{}
}

func (*TarGzExtractor) Extract(
	ctx context.Context,
	afs afero.Fs,
	archive io.ReaderAt,
	size int64,
	dest string,
) error {
	_, span := tracer.Start(ctx, "TarGzExtractor.Extract", trace.WithAttributes(
		attribute.String("dest", dest),
		attribute.Int64("size", size),
	))
	defer span.End()

	gz, err := gzip.NewReader(io.NewSectionReader(archive, 0, size))
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCorruptArchive, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open gzip stream")
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			err = fmt.Errorf("%w: %w", ErrUnsafePath, err)
		}
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrCorruptArchive, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read tar header")
			return err
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrCorruptArchive, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "unsafe entry")
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := mkdirAll(afs, target); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to create directory")
				return err
			}
		case tar.TypeReg:
			if err := writeFile(afs, target, fs.FileMode(hdr.Mode), tr); err != nil {
				if isFormatError(err) {
					err = fmt.Errorf("%w: %w", ErrCorruptArchive, err)
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to extract file")
				return err
			}
		default:
			span.AddEvent("skipped_entry", trace.WithAttributes(attribute.String("name", hdr.Name)))
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "extracted tar")
	return nil
}
