package upload

import (
	"fmt"

	"github.com/aixcyberchallenge/submission-relay/internal/config"
)

// Builds the configured bundle archive wrapped in retries. Returns nil when archiving is disabled.
func FromConfig(cfg *config.ArchiveConfig) (Uploader, error) {
	switch cfg.Backend {
	case config.ArchiveBackendNone, "":
		return nil, nil
	case config.ArchiveBackendS3:
		u, err := NewMinioUploader(&cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to construct s3 archiver: %w", err)
		}
		return NewRetryUploader(u), nil
	case config.ArchiveBackendAzure:
		u, err := NewAzureUploader(&cfg.Azure)
		if err != nil {
			return nil, fmt.Errorf("failed to construct azure archiver: %w", err)
		}
		return NewRetryUploader(u), nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
