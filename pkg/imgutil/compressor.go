package imgutil

import (
	"bytes"
	"image/jpeg"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// EncodeJPEG は画像を指定品質の JPEG にエンコードします。
// JPEG はアルファを持てないので、透過ピクセルは bg に重ねた色で出力されます。
func EncodeJPEG(img *domain.ImageAsset, quality int, bg domain.Color) ([]byte, error) {
	if img == nil {
		return nil, domain.NewError(domain.KindDecode, "EncodeJPEG", "image is nil", nil)
	}
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	if img.HasTransparency() {
		img = Flatten(img, bg)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, domain.NewError(domain.KindDecode, "EncodeJPEG", "jpeg encoding failed", err)
	}
	return buf.Bytes(), nil
}
