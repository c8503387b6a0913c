// Package archive keeps ledger snapshots and imported statement files in a
// Cloud Storage bucket.
package archive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/ledger-engine/internal/logger"
)

const uploadTimeout = 2 * time.Minute

// Archive reads and writes objects in one bucket. It holds a shared storage
// client so callers don't open one per object.
type Archive struct {
	client *storage.Client
	bucket string
}

// New creates an archive backed by bucket. It assumes Application Default
// Credentials are configured.
func New(ctx context.Context, bucket string) (*Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("New: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("New: create storage client: %w", err)
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// Close closes the storage client.
func (a *Archive) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Bucket returns the bucket name.
func (a *Archive) Bucket() string { return a.bucket }

// Upload streams r into objectName and returns its gs:// URI.
func (a *Archive) Upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copy to GCS writer: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize upload: %w", err)
	}

	uri := URI(a.bucket, objectName)
	log := logger.FromContext(ctx)
	log.Debug().Str("gcs_uri", uri).Msg("Object uploaded")
	return uri, nil
}

// Fetch downloads the object behind a gs:// URI. The URI may point at any
// bucket the credentials can read.
func (a *Archive) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// WriteSnapshot encodes s as JSON lines and uploads it under the snapshot
// prefix for runID.
func (a *Archive) WriteSnapshot(ctx context.Context, runID string, at time.Time, s Snapshot) (string, error) {
	pr, pw := io.Pipe()
	go func() {
		_, err := s.Encode(pw)
		pw.CloseWithError(err)
	}()

	uri, err := a.Upload(ctx, SnapshotObjectName(runID, at), "application/x-ndjson", pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("WriteSnapshot: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("export_run_id", runID).
		Str("gcs_uri", uri).
		Int("records", s.Len()).
		Msg("Snapshot archived")
	return uri, nil
}

// URI builds a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits gs://bucket/path/to/object into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// SnapshotObjectName lays snapshots out by UTC day so a bucket listing
// sorts chronologically.
func SnapshotObjectName(runID string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("snapshots/%s/%s-%s.jsonl", at.Format("2006/01/02"), at.Format("150405"), runID)
}

// StatementObjectName is where an uploaded statement file for userID lives.
func StatementObjectName(userID, filename string, at time.Time) string {
	return fmt.Sprintf("statements/%s/%s-%s", userID, at.UTC().Format("20060102T150405"), path.Base(filename))
}
