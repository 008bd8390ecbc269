package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// GCSArchive writes job reports as JSON objects to a Cloud Storage bucket.
type GCSArchive struct {
	client *storage.Client
	bucket string
	envKey string
	now    func() time.Time
}

// NewGCSArchive constructs an archive writing to bucket under the envKey prefix.
func NewGCSArchive(client *storage.Client, bucket, envKey string) (*GCSArchive, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &GCSArchive{client: client, bucket: bucket, envKey: envKey, now: time.Now}, nil
}

// Archive uploads the report and returns its gs:// URI.
func (a *GCSArchive) Archive(ctx context.Context, job, runID string, report any) (string, error) {
	loc, err := ResolveReportLocation(a.bucket, a.envKey, job, runID, a.now())
	if err != nil {
		return "", err
	}

	w := a.client.Bucket(loc.Bucket).Object(loc.FullPath).NewWriter(ctx)
	w.ContentType = "application/json"
	if err := json.NewEncoder(w).Encode(report); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", loc, err)
	}
	return loc.String(), nil
}

// Check verifies the bucket is reachable with the configured credentials; no object is written.
func (a *GCSArchive) Check(ctx context.Context) error {
	if _, err := a.client.Bucket(a.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("bucket %s: %w", a.bucket, err)
	}
	return nil
}
