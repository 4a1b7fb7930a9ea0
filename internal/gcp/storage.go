package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// ParseGSURI splits a gs://bucket/object URI into bucket and object name.
func ParseGSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if trimmed == uri {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, object, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed gs:// URI: %q", uri)
	}
	return bucket, object, nil
}

// FetchObject downloads a GCS object into memory, refusing objects
// larger than maxBytes.
func FetchObject(ctx context.Context, client *storage.Client, bucket, object string, maxBytes int64) ([]byte, error) {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object gs://%s/%s does not exist", bucket, object)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("object gs://%s/%s exceeds the %d byte limit", bucket, object, maxBytes)
	}
	return data, nil
}
