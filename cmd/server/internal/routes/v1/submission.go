package v1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	servermiddleware "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/middleware"
	"github.com/aixcyberchallenge/submission-relay/cmd/server/internal/response"
	"github.com/aixcyberchallenge/submission-relay/internal/archive"
	"github.com/aixcyberchallenge/submission-relay/internal/audit"
	"github.com/aixcyberchallenge/submission-relay/internal/extract"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
)

const (
	formField      = "file"
	stagingDirName = "submissionrelay"
	archiveTimeout = 2 * time.Minute
)

// Path of the status view for a submission
func StatusURL(submissionID string) string {
	return fmt.Sprintf("/v1/submission/%s/", submissionID)
}

// Path of the event stream for a submission
func EventsURL(submissionID string) string {
	return fmt.Sprintf("/v1/submission/%s/events/", submissionID)
}

// Accepts one archive per team, stages it and hands it to an upload worker
func (h *Handler) Submit(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Submit")
	defer span.End()

	team, err := servermiddleware.TeamFromContext(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("team: %s", err))
		return response.InternalServerError
	}
	span.SetAttributes(attribute.String("team", team.Name))

	l := logger.Logger.With("team", team.Name)

	submitted, err := h.ledger.Submitted(ctx, team.Name)
	if err != nil {
		l.ErrorContext(ctx, "failed to read submission lock", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read submission lock")
		return response.InternalServerError
	}
	if submitted {
		span.AddEvent("already submitted")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "already submitted")
		return response.AlreadySubmittedError
	}

	fileHeader, err := c.FormFile(formField)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			// body limit exceeded while parsing the form
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read form")
			return httpErr
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "missing file")
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError(fmt.Sprintf("multipart field %q is required", formField)),
		)
	}
	span.SetAttributes(
		attribute.String("filename", fileHeader.Filename),
		attribute.Int64("size", fileHeader.Size),
	)

	src, err := fileHeader.Open()
	if err != nil {
		l.ErrorContext(ctx, "failed to open uploaded file", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open uploaded file")
		return response.InternalServerError
	}
	// the archive task takes over src once the submission is accepted
	keepOpen := false
	defer func() {
		if !keepOpen {
			_ = src.Close()
		}
	}()

	submissionID := uuid.NewString()
	span.SetAttributes(attribute.String("submission.id", submissionID))
	l = logger.ForSubmission(submissionID, team.Name)

	stagingRoot := filepath.Join(h.config.TempDir, stagingDirName, submissionID)

	span.AddEvent("unpacking")
	files, err := h.unpacker.Unpack(ctx, src, fileHeader.Size, stagingRoot)
	if err != nil {
		if errors.Is(err, extract.ErrCorruptArchive) || errors.Is(err, extract.ErrUnsafePath) {
			l.InfoContext(ctx, "rejected archive", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "rejected archive")
			return echo.NewHTTPError(http.StatusBadRequest, types.StringError(err.Error()))
		}

		l.ErrorContext(ctx, "failed to unpack archive", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unpack archive")
		return response.InternalServerError
	}

	acquired, err := h.ledger.Acquire(ctx, team.Name)
	if err != nil || !acquired {
		h.removeStaging(ctx, stagingRoot)
		if err != nil {
			l.ErrorContext(ctx, "failed to take submission lock", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to take submission lock")
			return response.InternalServerError
		}

		span.AddEvent("lost the race for the submission lock")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "already submitted")
		return response.AlreadySubmittedError
	}

	ch, err := h.registry.Register(submissionID, team.Name)
	if err != nil {
		h.removeStaging(ctx, stagingRoot)
		if resetErr := h.ledger.Reset(ctx, team.Name); resetErr != nil {
			l.ErrorContext(ctx, "failed to release submission lock", "error", resetErr)
		}
		l.ErrorContext(ctx, "failed to register progress channel", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register progress channel")
		return response.InternalServerError
	}

	audit.LogSubmissionAccepted(
		audit.Context{Team: team.Name, SubmissionID: &submissionID},
		fileHeader.Filename,
		fileHeader.Size,
		len(files),
	)

	h.launcher.Launch(types.Submission{
		ID:          submissionID,
		Owner:       team.Name,
		StagingRoot: stagingRoot,
		Files:       files,
	}, ch)

	if h.archiver != nil {
		keepOpen = true
		h.launcher.Go(func(ctx context.Context) {
			defer src.Close()
			h.archiveBundle(ctx, submissionID, team.Name, fileHeader, src)
		})
	}

	l.InfoContext(ctx, "accepted submission", "files", len(files))

	c.Response().Header().Set(echo.HeaderLocation, StatusURL(submissionID))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "accepted submission")
	return c.JSON(http.StatusSeeOther, types.SubmissionAcceptedResponse{
		SubmissionID: submissionID,
		StatusURL:    StatusURL(submissionID),
		EventsURL:    EventsURL(submissionID),
	})
}

func (h *Handler) archiveBundle(
	ctx context.Context,
	submissionID, team string,
	fileHeader *multipart.FileHeader,
	reader io.ReadSeeker,
) {
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	_, err := archive.ArchiveBundle(ctx, h.archiver, &archive.Bundle{
		SubmissionID: submissionID,
		Team:         team,
		Filename:     fileHeader.Filename,
		ContentType:  fileHeader.Header.Get(echo.HeaderContentType),
		Reader:       reader,
		Size:         fileHeader.Size,
	})
	if err != nil {
		logger.ForSubmission(submissionID, team).ErrorContext(ctx, "failed to archive bundle", "error", err)
	}
}

func (h *Handler) removeStaging(ctx context.Context, stagingRoot string) {
	if err := h.fs.RemoveAll(stagingRoot); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to remove staging dir", "dest", stagingRoot, "error", err)
	}
}
