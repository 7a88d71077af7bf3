package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

var (
	zipMagic      = []byte("PK\x03\x04")
	emptyZipMagic = []byte("PK\x05\x06")
	gzipMagic     = []byte{0x1f, 0x8b}
)

// Unpacks an uploaded bundle into a fresh staging directory
type Unpacker struct {
	fs    afero.Fs
	zip   Extractor
	targz Extractor
}

func NewUnpacker(fs afero.Fs) *Unpacker {
	return &Unpacker{
		fs:    fs,
		zip:   NewZipExtractor(),
		targz: NewTarGzExtractor(),
	}
}

// Extracts archive into dest, which must not exist yet, and returns the relative
// slash separated paths of every regular file in lexical order. dest is removed
// if anything fails.
func (u *Unpacker) Unpack(
	ctx context.Context,
	archive io.ReaderAt,
	size int64,
	dest string,
) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Unpacker.Unpack", trace.WithAttributes(
		attribute.String("dest", dest),
		attribute.Int64("size", size),
	))
	defer span.End()

	extractor, err := u.detect(archive, size)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unrecognized archive")
		return nil, err
	}

	if _, err := u.fs.Stat(dest); err == nil {
		err = fmt.Errorf("%w: %s", ErrDestinationExists, dest)
		span.RecordError(err)
		span.SetStatus(codes.Error, "destination exists")
		return nil, err
	} else if !errors.Is(err, fs.ErrNotExist) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat destination")
		return nil, err
	}

	if err := u.fs.MkdirAll(dest, 0o750); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create destination")
		return nil, err
	}

	files, err := u.unpack(ctx, extractor, archive, size, dest)
	if err != nil {
		if rmErr := u.fs.RemoveAll(dest); rmErr != nil {
			logger.Logger.ErrorContext(ctx, "failed to remove staging dir", "dest", dest, "error", rmErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unpack")
		return nil, err
	}

	span.SetAttributes(attribute.Int("files", len(files)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "unpacked archive")
	return files, nil
}

func (u *Unpacker) unpack(
	ctx context.Context,
	extractor Extractor,
	archive io.ReaderAt,
	size int64,
	dest string,
) ([]string, error) {
	if err := extractor.Extract(ctx, u.fs, archive, size, dest); err != nil {
		return nil, err
	}

	root := filepath.Clean(dest)
	files := []string{}
	err := afero.Walk(u.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list staged files: %w", err)
	}

	return files, nil
}

func (u *Unpacker) detect(archive io.ReaderAt, size int64) (Extractor, error) {
	header := make([]byte, 4)
	n, err := archive.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArchive, err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, emptyZipMagic):
		return u.zip, nil
	case bytes.HasPrefix(header, gzipMagic):
		return u.targz, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized format (%d bytes)", ErrCorruptArchive, size)
	}
}

func isFormatError(err error) bool {
	var corrupt flate.CorruptInputError
	return errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, tar.ErrHeader) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &corrupt)
}
