package storage

import "fmt"

// Config selects and configures the storage backend.
type Config struct {
	// Type is "local" or "s3"; empty defaults to local.
	Type     string
	LocalDir string
	S3       S3Config
}

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: backend selection plus backend-specific settings.
// Returns:
//   - ObjectStorage: initialized storage implementation.
//   - error: non-nil if the backend cannot be created or Type is unknown.
func NewStorage(cfg Config) (ObjectStorage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.LocalDir)
	case "s3":
		return NewS3Storage(&cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
