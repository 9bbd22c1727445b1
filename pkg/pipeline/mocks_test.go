package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// mockGenerator は呼び出し回数と最後のリクエストを記録する Generator です。
type mockGenerator struct {
	calls    atomic.Int32
	generate func(ctx context.Context, req domain.GenerationRequest) (*domain.ImageAsset, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.ImageAsset, error) {
	m.calls.Add(1)
	if m.generate != nil {
		return m.generate(ctx, req)
	}
	return nil, nil
}

type mockExtractor struct {
	extract func(ctx context.Context, img *domain.ImageAsset) (*domain.ImageAsset, error)
}

func (m *mockExtractor) Extract(ctx context.Context, img *domain.ImageAsset) (*domain.ImageAsset, error) {
	return m.extract(ctx, img)
}

// --- Fixtures ---

var (
	opaqueWhite = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	skin        = color.NRGBA{R: 224, G: 172, B: 105, A: 255}
	navy        = color.NRGBA{R: 20, G: 30, B: 90, A: 255}
)

// portrait は単色背景の中央に被写体の矩形を置いた画像を返します。
func portrait(w, h int, bg, fg color.NRGBA) *domain.ImageAsset {
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

func pngBytes(t *testing.T, img *domain.ImageAsset) []byte {
	t.Helper()
	data, err := imgutil.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func validInput(t *testing.T) Input {
	t.Helper()
	return Input{
		Child: pngBytes(t, portrait(256, 256, navy, skin)),
		Adult: pngBytes(t, portrait(256, 256, navy, skin)),
	}
}
