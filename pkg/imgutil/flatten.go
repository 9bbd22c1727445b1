package imgutil

import (
	"image"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// Flatten は bg で塗りつぶしたキャンバスに img をアルファ合成し、完全不透明な画像を返します。
// 各チャンネルは out = src*a + bg*(1-a) を 8bit で丸めて計算します。
func Flatten(img *domain.ImageAsset, bg domain.Color) *domain.ImageAsset {
	src := img.NRGBA()
	out := image.NewNRGBA(src.Rect)
	for i := 0; i < len(src.Pix); i += 4 {
		a := uint32(src.Pix[i+3])
		out.Pix[i+0] = blend(src.Pix[i+0], bg.R, a)
		out.Pix[i+1] = blend(src.Pix[i+1], bg.G, a)
		out.Pix[i+2] = blend(src.Pix[i+2], bg.B, a)
		out.Pix[i+3] = 0xff
	}
	return domain.NewImageAsset(out)
}

func blend(s, d uint8, a uint32) uint8 {
	return uint8((uint32(s)*a + uint32(d)*(255-a) + 127) / 255)
}
