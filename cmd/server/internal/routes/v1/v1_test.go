package v1

import (
	"archive/zip"
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	servermiddleware "github.com/aixcyberchallenge/submission-relay/cmd/server/internal/middleware"
	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/extract"
	"github.com/aixcyberchallenge/submission-relay/internal/ledger"
	"github.com/aixcyberchallenge/submission-relay/internal/progress"
	"github.com/aixcyberchallenge/submission-relay/internal/types"
	"github.com/aixcyberchallenge/submission-relay/internal/upload"
)

var (
	teamX = &config.Team{Name: "teamX", Permissions: config.TeamPermissions{Submit: true}}
	teamY = &config.Team{Name: "teamY", Permissions: config.TeamPermissions{Submit: true}}
	admin = &config.Team{Name: "admin", Permissions: config.TeamPermissions{Admin: true}}
)

type launch struct {
	sub types.Submission
	ch  *progress.Channel
}

type fakeLauncher struct {
	mu       sync.Mutex
	launched []launch
	// background tasks held until RunBackground
	pending []func(ctx context.Context)
}

func (f *fakeLauncher) Go(fn func(ctx context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, fn)
}

func (f *fakeLauncher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeLauncher) RunBackground(ctx context.Context) {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, fn := range pending {
		fn(ctx)
	}
}

func (f *fakeLauncher) Launch(sub types.Submission, ch *progress.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, launch{sub: sub, ch: ch})
}

func (f *fakeLauncher) Launches() []launch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]launch(nil), f.launched...)
}

type testHandler struct {
	*Handler
	fs       afero.Fs
	registry *progress.Registry
	launcher *fakeLauncher
	echo     *echo.Echo
}

func newTestHandler(t *testing.T, led ledger.Ledger, archiver upload.Uploader) *testHandler {
	t.Helper()

	fs := afero.NewMemMapFs()
	if led == nil {
		led = ledger.NewFileLedger(fs, "/state/uploads_state.json")
	}

	cfg := &config.Config{
		TempDir:       "/tmp",
		MaxUploadSize: "1M",
	}

	registry := progress.NewRegistry(0)
	launcher := &fakeLauncher{}

	return &testHandler{
		Handler:  NewHandler(cfg, fs, extract.NewUnpacker(fs), registry, led, launcher, archiver),
		fs:       fs,
		registry: registry,
		launcher: launcher,
		echo:     echo.New(),
	}
}

// Runs handler on a fresh context for team and renders returned errors like echo would
func (h *testHandler) do(
	req *http.Request,
	team *config.Team,
	handler echo.HandlerFunc,
	paramValues ...string,
) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := h.echo.NewContext(req, rec)
	if team != nil {
		c.Set(servermiddleware.TeamKey, team)
	}
	if len(paramValues) > 0 {
		c.SetParamNames("submission_id")
		c.SetParamValues(paramValues...)
	}

	if err := handler(c); err != nil {
		h.echo.HTTPErrorHandler(err, c)
	}

	return rec
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func multipartRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file here"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/submission/", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	return req
}
