// Package archive stores uploaded receipt images in Google Cloud Storage so
// a scan has a durable record of what the model actually saw. Archiving is
// optional: with no bucket configured every operation is a no-op.
package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Archive writes and reads receipt images under a single bucket.
// It assumes Application Default Credentials are configured.
type Archive struct {
	bucket string
}

// New creates an archive for the given bucket. An empty bucket name
// disables archiving.
func New(bucket string) *Archive {
	return &Archive{bucket: bucket}
}

// Enabled reports whether a bucket is configured.
func (a *Archive) Enabled() bool {
	return a.bucket != ""
}

// Put uploads a receipt image and returns its gs:// URI. When archiving is
// disabled it returns an empty URI and no error - the scan proceeds either
// way.
func (a *Archive) Put(ctx context.Context, image []byte, mimeType, filename string) (string, error) {
	if !a.Enabled() {
		return "", nil
	}

	objectName := fmt.Sprintf("receipts/%s/%s-%s",
		time.Now().Format("2006/01/02"), uuid.NewString(), sanitizeFilename(filename))

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("archive.Put: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(a.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = mimeType

	if _, err := w.Write(image); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("archive.Put: write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive.Put: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// Fetch downloads the image bytes for a previously archived receipt.
func (a *Archive) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := splitGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive.Fetch: create storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive.Fetch: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("archive.Fetch: reading bytes: %w", err)
	}

	return data, nil
}

// splitGCSURI splits "gs://bucket/path/to/object" into bucket and path.
func splitGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}

	return parts[0], parts[1], nil
}

// sanitizeFilename strips path separators and query junk from an uploaded
// filename before it becomes part of an object name.
func sanitizeFilename(name string) string {
	if idx := strings.Index(name, "?"); idx > 0 {
		name = name[:idx]
	}
	if idx := strings.LastIndexAny(name, "/\\"); idx != -1 {
		name = name[idx+1:]
	}
	if name == "" {
		name = "receipt"
	}
	return name
}
