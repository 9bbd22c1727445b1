package source

import (
	"bytes"
	"context"
	"io"
	"time"
)

// --- Mocks ---

type mockHTTPClient struct {
	calls int
	data  []byte
	err   error
}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	return m.data, m.err
}

type mockReader struct {
	objects map[string][]byte
	opened  []string
	err     error
}

func (m *mockReader) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	m.opened = append(m.opened, uri)
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.objects[uri]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockReader) List(ctx context.Context, uri string, fn func(string) error) error {
	for k := range m.objects {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

type mockCache struct {
	data map[string]any
	ttls map[string]time.Duration
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (m *mockCache) Get(key string) (any, bool) {
	val, ok := m.data[key]
	return val, ok
}

func (m *mockCache) Set(key string, value any, d time.Duration) {
	m.data[key] = value
	m.ttls[key] = d
}

func allowAll(string) (bool, error) { return true, nil }
