package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

// parseURI splits a gs://bucket/path/to/object URI into bucket and object.
func parseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Filename extracts the file name from a gs:// URI.
// e.g. "gs://bucket/folder/file.parquet" → "file.parquet".
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// stage downloads the object behind a gs:// URI into a temp file. The copy
// streams, so staging a large object never holds it in memory.
func stage(ctx context.Context, uri string) (*File, error) {
	bucket, object, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "txinsights-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("download %s: %w", uri, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("finalize staging file: %w", err)
	}

	return &File{Path: tmp.Name(), staged: true}, nil
}

// Upload copies a local file to a GCS bucket under the given object name.
// It assumes Application Default Credentials are configured.
func Upload(ctx context.Context, bucket, object, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// UploadURI uploads a local file to a gs:// destination and returns the final
// object URI. A destination without an object path, or one ending in "/",
// takes the local file's name.
func UploadURI(ctx context.Context, localPath, destURI string) (string, error) {
	bucket, object, err := destination(localPath, destURI)
	if err != nil {
		return "", err
	}
	if err := Upload(ctx, bucket, object, localPath); err != nil {
		return "", err
	}
	return "gs://" + bucket + "/" + object, nil
}

func destination(localPath, destURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(destURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", destURI)
	}

	trimmed := strings.TrimPrefix(destURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", destURI)
	}

	bucket = parts[0]
	if len(parts) == 2 {
		object = parts[1]
	}
	if object == "" || strings.HasSuffix(object, "/") {
		object += filepath.Base(localPath)
	}
	return bucket, object, nil
}
