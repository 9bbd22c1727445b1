package generator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
	"google.golang.org/genai"
)

// --- Mocks ---

// countingTransport は呼び出し回数を数える http.RoundTripper です。
type countingTransport struct {
	calls atomic.Int32
	do    func(req *http.Request) (*http.Response, error)
}

func (m *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.calls.Add(1)
	if m.do != nil {
		return m.do(req)
	}
	return nil, errors.New("countingTransport: no response configured")
}

func (m *countingTransport) client() *http.Client {
	return &http.Client{Transport: m}
}

// mockAIClient は gemini.GenerativeModel のテスト用モックなのだ。
// 使わないメソッドは埋め込んだインターフェースで満たすのだ。
type mockAIClient struct {
	gemini.GenerativeModel
	calls     int
	lastModel string
	lastParts []*genai.Part
	lastOpts  gemini.GenerateOptions
	generate  func(ctx context.Context, parts []*genai.Part) (*gemini.Response, error)
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	m.calls++
	m.lastModel = model
	m.lastParts = parts
	m.lastOpts = opts
	if m.generate != nil {
		return m.generate(ctx, parts)
	}
	return nil, nil
}

// --- Fixtures ---

func solidAsset(w, h int, c color.NRGBA) *domain.ImageAsset {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return domain.NewImageAsset(img)
}

func pngBase64(t *testing.T, img *domain.ImageAsset) string {
	t.Helper()
	s, err := imgutil.EncodeToTransport(img)
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return s
}

func pngBytes(t *testing.T, img *domain.ImageAsset) []byte {
	t.Helper()
	data, err := imgutil.EncodePNG(img)
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return data
}

func newRequest(t *testing.T) domain.GenerationRequest {
	t.Helper()
	req, err := domain.NewGenerationRequest(
		"adult holds child's hand",
		"watermark",
		solidAsset(8, 8, color.NRGBA{R: 200, A: 255}),
		solidAsset(8, 8, color.NRGBA{B: 200, A: 255}),
		domain.White,
		map[string]any{"background": "#FFFFFF", "soft_lighting": true},
	)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return req
}
