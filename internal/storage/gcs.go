package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSStore stores raw matches in one Cloud Storage bucket
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

// NewGCSStore wraps a bucket of an existing client
func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket), name: bucket}
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gs://%s/%s: attrs: %w", s.name, key, err)
	}
	return true, nil
}

// Put uploads body with a does-not-exist precondition. The object becomes
// visible only when the writer closes successfully.
func (s *GCSStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	// Single request upload for the whole document
	w.ChunkSize = 0

	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		// Cancelling before Close aborts the upload
		cancel()
		_ = w.Close()
		return fmt.Errorf("gs://%s/%s: write: %w", s.name, key, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return ErrObjectExists
		}
		return fmt.Errorf("gs://%s/%s: close: %w", s.name, key, err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gs://%s/%s: list: %w", s.name, prefix, err)
		}
		// Skip folder placeholder objects
		if attrs.Name == prefix {
			continue
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gs://%s/%s: open: %w", s.name, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gs://%s/%s: read: %w", s.name, key, err)
	}
	return data, nil
}

// GCSProvider opens GCSStores from a shared client
type GCSProvider struct {
	Client *storage.Client
}

func (p GCSProvider) Open(bucket string) (Store, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return NewGCSStore(p.Client, bucket), nil
}
