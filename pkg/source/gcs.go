package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"google.golang.org/api/iterator"
)

// GCSStore は Cloud Storage 上のオブジェクトを gs:// URI で読み書きします。
type GCSStore struct {
	client *storage.Client
}

var _ remoteio.InputReader = (*GCSStore)(nil)

// NewGCSStore は GCSStore を初期化します。
func NewGCSStore(client *storage.Client) (*GCSStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return &GCSStore{client: client}, nil
}

// Open は gs:// URI のオブジェクトを読み込み用に開きます。
func (s *GCSStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	if object == "" {
		return nil, fmt.Errorf("object name is empty: %s", uri)
	}
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSオブジェクトを開けませんでした (%s): %w", uri, err)
	}
	return r, nil
}

// List は uri をプレフィックスとして一致するオブジェクトの gs:// URI を fn に渡します。
func (s *GCSStore) List(ctx context.Context, uri string, fn func(string) error) error {
	bucket, prefix, err := ParseGCSURI(uri)
	if err != nil {
		return err
	}
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("GCSオブジェクトの列挙に失敗しました (%s): %w", uri, err)
		}
		if err := fn(fmt.Sprintf("gs://%s/%s", bucket, attrs.Name)); err != nil {
			return err
		}
	}
}

// Write はデータを gs:// URI のオブジェクトとして保存します。
func (s *GCSStore) Write(ctx context.Context, uri string, data []byte, contentType string) error {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return err
	}
	if object == "" {
		return fmt.Errorf("object name is empty: %s", uri)
	}

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCSへの書き込みに失敗しました (%s): %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSへの書き込みに失敗しました (%s): %w", uri, err)
	}
	return nil
}
