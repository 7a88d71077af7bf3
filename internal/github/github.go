package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixcyberchallenge/submission-relay/internal/config"
	"github.com/aixcyberchallenge/submission-relay/internal/logger"
)

const name = "github.com/aixcyberchallenge/submission-relay/internal/github"

var tracer = otel.Tracer(name)

var ErrRemoteUpsert = errors.New("remote upsert failed")

// Outcome of one upsert. StatusCode is 0 when no response was received.
type UpsertResult struct {
	StatusCode int
	// Raw response body for failed writes
	Response string
	// Blob SHA of the stored content after a successful write
	SHA string
	// Whether the write was an update of an existing object
	Updated bool
}

func (r UpsertResult) OK() bool {
	return r.StatusCode == http.StatusOK || r.StatusCode == http.StatusCreated
}

// Writes local files into a repository through the contents API
type ContentsClient struct {
	client        *github.Client
	fs            afero.Fs
	owner         string
	repo          string
	branch        string
	commitMessage string
}

// Builds the HTTP stack for the GitHub API: retryablehttp for connection level failures,
// with either a fixed token or a GitHub App installation as the credential.
func Create(cfg *config.GithubConfig, fs afero.Fs) (*ContentsClient, error) {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.TransportRetries
	retryClient.Logger = logger.Logger
	// responses are never retried here, whatever the status
	retryClient.CheckRetry = func(ctx context.Context, _ *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if cfg.AppID != 0 {
		itr, err := ghinstallation.NewKeyFromFile(
			retryClient.HTTPClient.Transport,
			cfg.AppID,
			cfg.InstallationID,
			cfg.AppKeyPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to read github app private key: %w", err)
		}
		retryClient.HTTPClient.Transport = itr
	}

	client := github.NewClient(retryClient.StandardClient())
	if cfg.AppID == 0 {
		client = client.WithAuthToken(cfg.Token)
	}

	if cfg.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
	}

	return NewContentsClient(client, fs, cfg.Owner, cfg.Repo, cfg.Branch, cfg.CommitMessage), nil
}

// `branch` may be empty for the repository default branch.
// `commitMessage` may contain one %s which is replaced by the remote path.
func NewContentsClient(
	client *github.Client,
	fs afero.Fs,
	owner, repo, branch, commitMessage string,
) *ContentsClient {
	return &ContentsClient{
		client:        client,
		fs:            fs,
		owner:         owner,
		repo:          repo,
		branch:        branch,
		commitMessage: commitMessage,
	}
}

func (c *ContentsClient) message(remotePath string) string {
	if strings.Contains(c.commitMessage, "%s") {
		return fmt.Sprintf(c.commitMessage, remotePath)
	}
	return c.commitMessage
}

// Creates or updates `remotePath` with the contents of `localPath`.
//
// The current blob SHA is read first so the write is accepted as an update. The read and
// the write are not atomic; a concurrent change in between surfaces as a failed result.
// Nothing is retried here.
func (c *ContentsClient) Upsert(
	ctx context.Context,
	localPath string,
	remotePath string,
) (UpsertResult, error) {
	ctx, span := tracer.Start(ctx, "ContentsClient.Upsert", trace.WithAttributes(
		attribute.String("localPath", localPath),
		attribute.String("remotePath", remotePath),
	))
	defer span.End()

	content, err := afero.ReadFile(c.fs, localPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read local file")
		return UpsertResult{Response: err.Error()}, fmt.Errorf(
			"%w: failed to read %s: %w",
			ErrRemoteUpsert,
			localPath,
			err,
		)
	}
	span.SetAttributes(attribute.Int("length", len(content)))

	sha, err := c.currentSHA(ctx, remotePath)
	if err != nil {
		status, body := describe(nil, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read current object")
		return UpsertResult{StatusCode: status, Response: body}, fmt.Errorf(
			"%w: failed to read %s: %w",
			ErrRemoteUpsert,
			remotePath,
			err,
		)
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(c.message(remotePath)),
		Content: content,
	}
	if c.branch != "" {
		opts.Branch = github.String(c.branch)
	}

	// GetContents escapes its path, the write calls do not
	escaped := (&url.URL{Path: remotePath}).EscapedPath()

	var written *github.RepositoryContentResponse
	var resp *github.Response
	if sha != nil {
		span.AddEvent("updating existing object", trace.WithAttributes(attribute.String("sha", *sha)))
		opts.SHA = sha
		written, resp, err = c.client.Repositories.UpdateFile(ctx, c.owner, c.repo, escaped, opts)
	} else {
		span.AddEvent("creating object")
		written, resp, err = c.client.Repositories.CreateFile(ctx, c.owner, c.repo, escaped, opts)
	}

	result := UpsertResult{Updated: sha != nil}
	if err != nil {
		result.StatusCode, result.Response = describe(resp, err)
		span.SetAttributes(attribute.Int("status", result.StatusCode))
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write object")
		return result, fmt.Errorf(
			"%w: %s: status %d",
			ErrRemoteUpsert,
			remotePath,
			result.StatusCode,
		)
	}

	result.StatusCode = resp.StatusCode
	if written != nil && written.Content != nil {
		result.SHA = written.Content.GetSHA()
	}
	span.SetAttributes(attribute.Int("status", result.StatusCode))

	if !result.OK() {
		span.SetStatus(codes.Error, "unexpected status writing object")
		return result, fmt.Errorf("%w: %s: status %d", ErrRemoteUpsert, remotePath, result.StatusCode)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "upserted object")
	return result, nil
}

// Blob SHA of the object at `remotePath`, nil if it does not exist
func (c *ContentsClient) currentSHA(ctx context.Context, remotePath string) (*string, error) {
	ctx, span := tracer.Start(ctx, "ContentsClient.currentSHA")
	defer span.End()

	var opts *github.RepositoryContentGetOptions
	if c.branch != "" {
		opts = &github.RepositoryContentGetOptions{Ref: c.branch}
	}

	file, _, resp, err := c.client.Repositories.GetContents(ctx, c.owner, c.repo, remotePath, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			span.SetStatus(codes.Ok, "object does not exist")
			return nil, nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get contents")
		return nil, err
	}

	if file == nil || file.SHA == nil {
		// a directory lives at this path, the write will be rejected remotely
		span.SetStatus(codes.Ok, "no file at path")
		return nil, nil
	}

	span.SetStatus(codes.Ok, "found object")
	return file.SHA, nil
}

// Status code and diagnostic body for a failed API call
func describe(resp *github.Response, err error) (int, string) {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		if status == 0 {
			status = errResp.Response.StatusCode
		}

		// go-github re-populates the body after decoding the error
		if errResp.Response.Body != nil {
			body, readErr := io.ReadAll(errResp.Response.Body)
			if readErr == nil && len(body) > 0 {
				return status, string(body)
			}
		}

		return status, errResp.Message
	}

	return status, err.Error()
}
