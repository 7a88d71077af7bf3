package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mockledger "github.com/aixcyberchallenge/submission-relay/internal/ledger/mock"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
	"github.com/aixcyberchallenge/submission-relay/internal/upload"
	mockuploader "github.com/aixcyberchallenge/submission-relay/internal/upload/mock"
)

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	archiveBytes := func(t *testing.T) []byte {
		return zipArchive(t, map[string]string{
			"dir/b.txt": "bravo",
			"a.txt":     "alpha",
		})
	}

	t.Run("Accepted", func(t *testing.T) {
		h := newTestHandler(t, nil, nil)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", archiveBytes(t)), teamX, h.Submit)
		require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

		var body types.SubmissionAcceptedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body.SubmissionID)
		assert.Equal(t, StatusURL(body.SubmissionID), rec.Header().Get("Location"))
		assert.Equal(t, EventsURL(body.SubmissionID), body.EventsURL)

		launches := h.launcher.Launches()
		require.Len(t, launches, 1)
		sub := launches[0].sub
		assert.Equal(t, body.SubmissionID, sub.ID)
		assert.Equal(t, "teamX", sub.Owner)
		assert.Equal(t, []string{"a.txt", "dir/b.txt"}, sub.Files)

		content, err := afero.ReadFile(h.fs, path.Join(sub.StagingRoot, "dir/b.txt"))
		require.NoError(t, err)
		assert.Equal(t, "bravo", string(content))

		ch, ok := h.registry.Lookup(sub.ID)
		require.True(t, ok)
		assert.Same(t, ch, launches[0].ch)
		assert.Equal(t, "teamX", ch.Owner())

		submitted, err := h.ledger.Submitted(ctx, "teamX")
		require.NoError(t, err)
		assert.True(t, submitted)
	})

	t.Run("AlreadySubmitted", func(t *testing.T) {
		h := newTestHandler(t, nil, nil)
		_, err := h.ledger.Acquire(ctx, "teamX")
		require.NoError(t, err)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", archiveBytes(t)), teamX, h.Submit)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, h.launcher.Launches())
		assert.Equal(t, 0, h.registry.Len())
	})

	t.Run("OtherTeamLockedDoesNotMatter", func(t *testing.T) {
		h := newTestHandler(t, nil, nil)
		_, err := h.ledger.Acquire(ctx, "teamY")
		require.NoError(t, err)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", archiveBytes(t)), teamX, h.Submit)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})

	t.Run("MissingFile", func(t *testing.T) {
		h := newTestHandler(t, nil, nil)

		rec := h.do(multipartRequest(t, "", "", nil), teamX, h.Submit)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "file")

		submitted, err := h.ledger.Submitted(ctx, "teamX")
		require.NoError(t, err)
		assert.False(t, submitted)
	})

	t.Run("CorruptArchive", func(t *testing.T) {
		h := newTestHandler(t, nil, nil)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", []byte("definitely not an archive")), teamX, h.Submit)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, h.launcher.Launches())

		submitted, err := h.ledger.Submitted(ctx, "teamX")
		require.NoError(t, err)
		assert.False(t, submitted, "a rejected archive must not take the lock")
	})

	t.Run("ConflictingEntries", func(t *testing.T) {
		h := newTestHandler(t, nil, nil)

		archive := zipArchive(t, map[string]string{"a": "file", "a/b": "nested"})
		rec := h.do(multipartRequest(t, "file", "bundle.zip", archive), teamX, h.Submit)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, h.launcher.Launches())
	})

	t.Run("LostLockRace", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		led := mockledger.NewMockLedger(ctrl)
		led.EXPECT().Submitted(gomock.Any(), "teamX").Return(false, nil)
		led.EXPECT().Acquire(gomock.Any(), "teamX").Return(false, nil)

		h := newTestHandler(t, led, nil)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", archiveBytes(t)), teamX, h.Submit)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, h.launcher.Launches())

		entries, err := afero.ReadDir(h.fs, "/tmp/submissionrelay")
		require.NoError(t, err)
		assert.Empty(t, entries, "staging dir removed")
	})

	t.Run("LedgerFailure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		led := mockledger.NewMockLedger(ctrl)
		led.EXPECT().Submitted(gomock.Any(), "teamX").Return(false, errors.New("expected error"))

		h := newTestHandler(t, led, nil)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", archiveBytes(t)), teamX, h.Submit)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("Archived", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		archiver := mockuploader.NewMockUploader(ctrl)
		archiver.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
		archiver.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		archiver.EXPECT().StoreIdentifier(gomock.Any()).Return("archive-bucket", nil)

		h := newTestHandler(t, nil, archiver)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", archiveBytes(t)), teamX, h.Submit)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Len(t, h.launcher.Launches(), 1)

		h.launcher.RunBackground(context.Background())
	})

	t.Run("ArchivedAfterResponse", func(t *testing.T) {
		content := archiveBytes(t)

		ctrl := gomock.NewController(t)
		archiver := mockuploader.NewMockUploader(ctrl)
		archiver.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil)
		archiver.EXPECT().
			Upload(gomock.Any(), gomock.Any(), int64(len(content)), gomock.Any()).
			DoAndReturn(func(_ context.Context, r io.ReadSeeker, _ int64, _ upload.Object) error {
				raw, err := io.ReadAll(r)
				require.NoError(t, err)
				assert.Equal(t, content, raw, "upload stays readable after the response")
				return nil
			})
		archiver.EXPECT().StoreIdentifier(gomock.Any()).Return("archive-bucket", nil)

		h := newTestHandler(t, nil, archiver)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", content), teamX, h.Submit)
		assert.Equal(t, http.StatusSeeOther, rec.Code)

		// worker runs before the archive upload starts
		assert.Len(t, h.launcher.Launches(), 1)
		assert.Equal(t, 1, h.launcher.Pending())

		h.launcher.RunBackground(context.Background())
		assert.Equal(t, 0, h.launcher.Pending())
	})

	t.Run("ArchiveFailureDoesNotBlock", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		archiver := mockuploader.NewMockUploader(ctrl)
		archiver.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, errors.New("expected error"))

		h := newTestHandler(t, nil, archiver)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", archiveBytes(t)), teamX, h.Submit)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Len(t, h.launcher.Launches(), 1)

		h.launcher.RunBackground(context.Background())
	})

	t.Run("NoTeam", func(t *testing.T) {
		h := newTestHandler(t, nil, nil)

		rec := h.do(multipartRequest(t, "file", "bundle.zip", archiveBytes(t)), nil, h.Submit)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
