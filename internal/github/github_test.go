package github_test

import (
	"context"
	"crypto/sha1" // #nosec G505 -- mirrors git blob ids in the fake API
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	gogithub "github.com/google/go-github/v66/github"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixcyberchallenge/submission-relay/internal/github"
)

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

// In-memory stand-in for the contents API of one repository
type fakeContentsAPI struct {
	mu      sync.Mutex
	objects map[string]string
	puts    []putRequest
	// forced status for every PUT when non-zero
	putStatus int
}

func newFakeContentsAPI() *fakeContentsAPI {
	return &fakeContentsAPI{objects: make(map[string]string)}
}

func (f *fakeContentsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/repos/owner/repo/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		sha, ok := f.objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"type": "file", "path": path, "sha": sha})

	case http.MethodPut:
		var req putRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.puts = append(f.puts, req)

		if f.putStatus != 0 {
			w.WriteHeader(f.putStatus)
			_, _ = w.Write([]byte(`{"message":"forced failure"}`))
			return
		}

		current, exists := f.objects[path]
		if exists && req.SHA == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"Invalid request.\n\n\"sha\" wasn't supplied."}`))
			return
		}
		if exists && req.SHA != current {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"is at ` + current + ` but expected ` + req.SHA + `"}`))
			return
		}

		raw, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sum := sha1.Sum(append([]byte(path+"\x00"), raw...)) // #nosec G401
		sha := hex.EncodeToString(sum[:])
		f.objects[path] = sha

		if exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusCreated)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]string{"path": path, "sha": sha},
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newClient(t *testing.T, api http.Handler, fs afero.Fs, branch string) *github.ContentsClient {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	gh := gogithub.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	gh.BaseURL = base

	return github.NewContentsClient(gh, fs, "owner", "repo", branch, "Upload %s")
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/stage/a.txt", []byte("hello world"), 0o644))

	t.Run("Create", func(t *testing.T) {
		api := newFakeContentsAPI()
		client := newClient(t, api, fs, "")

		result, err := client.Upsert(ctx, "/stage/a.txt", "submissions/teamX/a.txt")
		require.NoError(t, err)

		assert.True(t, result.OK())
		assert.Equal(t, http.StatusCreated, result.StatusCode)
		assert.False(t, result.Updated)
		assert.NotEmpty(t, result.SHA)

		require.Len(t, api.puts, 1)
		assert.Equal(t, "Upload submissions/teamX/a.txt", api.puts[0].Message)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello world")), api.puts[0].Content)
		assert.Empty(t, api.puts[0].SHA)
	})

	t.Run("Idempotent", func(t *testing.T) {
		api := newFakeContentsAPI()
		client := newClient(t, api, fs, "")

		first, err := client.Upsert(ctx, "/stage/a.txt", "submissions/teamX/a.txt")
		require.NoError(t, err)

		second, err := client.Upsert(ctx, "/stage/a.txt", "submissions/teamX/a.txt")
		require.NoError(t, err)

		assert.True(t, second.OK())
		assert.Equal(t, http.StatusOK, second.StatusCode)
		assert.True(t, second.Updated)

		require.Len(t, api.puts, 2)
		assert.Equal(t, first.SHA, api.puts[1].SHA, "second write must carry the revision marker")
		assert.Len(t, api.objects, 1, "no duplicate object is created")
	})

	t.Run("ReservedCharacters", func(t *testing.T) {
		for name, remote := range map[string]string{
			"Fragment": "submissions/teamX/notes#1.txt",
			"Query":    "submissions/teamX/q?.txt",
			"Percent":  "submissions/teamX/100%.txt",
			"Space":    "submissions/teamX/my notes.txt",
		} {
			t.Run(name, func(t *testing.T) {
				api := newFakeContentsAPI()
				client := newClient(t, api, fs, "")

				created, err := client.Upsert(ctx, "/stage/a.txt", remote)
				require.NoError(t, err)
				assert.Equal(t, http.StatusCreated, created.StatusCode)

				api.mu.Lock()
				_, stored := api.objects[remote]
				api.mu.Unlock()
				assert.True(t, stored, "object stored under its full path")

				updated, err := client.Upsert(ctx, "/stage/a.txt", remote)
				require.NoError(t, err)
				assert.Equal(t, http.StatusOK, updated.StatusCode)
				assert.True(t, updated.Updated)
				assert.Len(t, api.objects, 1)
			})
		}
	})

	t.Run("Branch", func(t *testing.T) {
		api := newFakeContentsAPI()
		client := newClient(t, api, fs, "submissions")

		_, err := client.Upsert(ctx, "/stage/a.txt", "submissions/teamX/a.txt")
		require.NoError(t, err)

		require.Len(t, api.puts, 1)
		assert.Equal(t, "submissions", api.puts[0].Branch)
	})

	t.Run("RemoteFailure", func(t *testing.T) {
		api := newFakeContentsAPI()
		api.putStatus = http.StatusForbidden
		client := newClient(t, api, fs, "")

		result, err := client.Upsert(ctx, "/stage/a.txt", "submissions/teamX/a.txt")
		require.ErrorIs(t, err, github.ErrRemoteUpsert)

		assert.False(t, result.OK())
		assert.Equal(t, http.StatusForbidden, result.StatusCode)
		assert.Contains(t, result.Response, "forced failure")
	})

	t.Run("Conflict", func(t *testing.T) {
		api := newFakeContentsAPI()
		client := newClient(t, api, fs, "")

		// an external writer changes the object between our read and write
		racing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut {
				api.mu.Lock()
				api.objects["submissions/teamX/a.txt"] = "changed"
				api.mu.Unlock()
			}
			api.ServeHTTP(w, r)
		})
		_, err := client.Upsert(ctx, "/stage/a.txt", "submissions/teamX/a.txt")
		require.NoError(t, err)

		client = newClient(t, racing, fs, "")
		result, err := client.Upsert(ctx, "/stage/a.txt", "submissions/teamX/a.txt")
		require.ErrorIs(t, err, github.ErrRemoteUpsert)
		assert.Equal(t, http.StatusConflict, result.StatusCode)
	})

	t.Run("MissingLocalFile", func(t *testing.T) {
		api := newFakeContentsAPI()
		client := newClient(t, api, fs, "")

		result, err := client.Upsert(ctx, "/stage/missing.txt", "submissions/teamX/missing.txt")
		require.ErrorIs(t, err, github.ErrRemoteUpsert)

		assert.False(t, result.OK())
		assert.Equal(t, 0, result.StatusCode)
		assert.Empty(t, api.puts, "nothing is written remotely")
	})

	t.Run("ReadFailure", func(t *testing.T) {
		api := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
		})
		client := newClient(t, api, fs, "")

		result, err := client.Upsert(ctx, "/stage/a.txt", "submissions/teamX/a.txt")
		require.ErrorIs(t, err, github.ErrRemoteUpsert)
		assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
		assert.Contains(t, result.Response, "boom")
	})
}
