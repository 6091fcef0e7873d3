// Package storage holds uploaded spreadsheets and raw report archives in an
// object store, either S3-compatible or a local directory.
package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for object storage operations
type ObjectStorage interface {
	// Upload stores an object under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object for reading; the caller closes it
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete removes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadKey is where an uploaded spreadsheet lives.
func UploadKey(profileID, uploadID, ext string) string {
	return "uploads/" + profileID + "/" + uploadID + ext
}

// ReportArchiveKey is where a fetched raw report payload is archived.
func ReportArchiveKey(profileID, jobID string) string {
	return "reports/" + profileID + "/" + jobID + ".json"
}
