package compositor

import (
	"context"
	"image"
	"image/color"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// --- Mocks ---

type mockExtractor struct {
	calls   int
	extract func(ctx context.Context, img *domain.ImageAsset) (*domain.ImageAsset, error)
}

func (m *mockExtractor) Extract(ctx context.Context, img *domain.ImageAsset) (*domain.ImageAsset, error) {
	m.calls++
	if m.extract != nil {
		return m.extract(ctx, img)
	}
	return img, nil
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

// framedAsset は外周 border ピクセルを bg、内側を fg で塗った画像を返します。
func framedAsset(w, h, border int, bg, fg color.NRGBA) *domain.ImageAsset {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < border || y < border || x >= w-border || y >= h-border {
				img.SetNRGBA(x, y, bg)
			} else {
				img.SetNRGBA(x, y, fg)
			}
		}
	}
	return domain.NewImageAsset(img)
}

var (
	opaqueWhite = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	opaqueRed   = color.NRGBA{R: 220, G: 30, B: 30, A: 255}
	transparent = color.NRGBA{}
)
