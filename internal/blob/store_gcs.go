package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const gcsScheme = "gs://"

// GCSStore writes objects to a Cloud Storage bucket. Writes carry a
// DoesNotExist precondition, so a repeated put of the same content key is a
// no-op.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCS(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte) (Ref, error) {
	obj := s.client.Bucket(s.bucket).Object(key)
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = http.DetectContentType(data)

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			return s.ref(key), nil
		}
		return "", fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return s.ref(key), nil
		}
		return "", fmt.Errorf("finalize gcs object %s: %w", key, err)
	}
	return s.ref(key), nil
}

func (s *GCSStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	bucket, key, err := parseGCSRef(ref)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open gcs object %s: %w", key, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) ref(key string) Ref {
	return Ref(gcsScheme + s.bucket + "/" + key)
}

func parseGCSRef(ref Ref) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(string(ref), gcsScheme)
	if !ok {
		return "", "", fmt.Errorf("not a gcs ref: %q", ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed gcs ref: %q", ref)
	}
	return bucket, key, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
