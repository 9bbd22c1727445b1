package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
	"github.com/shouni/reunion-image-kit/pkg/pipeline"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type mockRunner struct {
	calls int
	last  pipeline.Input
	run   func(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

func (m *mockRunner) Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error) {
	m.calls++
	m.last = in
	return m.run(ctx, in)
}

type stubGenerator struct {
	img *domain.ImageAsset
}

func (s *stubGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.ImageAsset, error) {
	return s.img, nil
}

// --- Fixtures ---

func framed(w, h int, bg, fg color.NRGBA) *domain.ImageAsset {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= w/4 && x < w*3/4 && y >= h/4 && y < h*3/4 {
				img.SetNRGBA(x, y, fg)
			} else {
				img.SetNRGBA(x, y, bg)
			}
		}
	}
	return domain.NewImageAsset(img)
}

func pngOf(t *testing.T, img *domain.ImageAsset) []byte {
	t.Helper()
	data, err := imgutil.EncodePNG(img)
	require.NoError(t, err)
	return data
}

// multipartRequest は files と fields から POST /v1/reunions のリクエストを組み立てるのだ。
func multipartRequest(t *testing.T, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/reunions", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
