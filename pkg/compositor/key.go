package compositor

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// DefaultKeyTolerance は KeyExtractor の既定の色差許容値です。
// MaxKeyTolerance を超えると被写体まで背景として消えるため受け付けません。
const (
	DefaultKeyTolerance = 24
	MaxKeyTolerance     = 254
)

// KeyExtractor は画像の外周で最も多い色を背景色とみなし、外周から連続する近い色を透明にします。
// 生成 API に単色背景を指示している前提の、外部サービス不要の前景抽出です。
type KeyExtractor struct {
	// Tolerance はチャンネルごとの最大差。これ以下の画素を背景とみなします。0 なら既定値です。
	Tolerance int
}

// Extract は背景を透明にした画像を返します。
func (k KeyExtractor) Extract(ctx context.Context, img *domain.ImageAsset) (*domain.ImageAsset, error) {
	const op = "compositor.KeyExtractor.Extract"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tol := k.Tolerance
	switch {
	case tol == 0:
		tol = DefaultKeyTolerance
	case tol < 0 || tol > MaxKeyTolerance:
		return nil, domain.NewError(domain.KindConfig, op, fmt.Sprintf("key tolerance must be between 1 and %d, got %d", MaxKeyTolerance, tol), nil)
	}
	if img == nil || img.Width() == 0 || img.Height() == 0 {
		return nil, domain.NewError(domain.KindCompositing, op, "image has no pixels", nil)
	}

	pix := img.NRGBA()
	w, h := img.Width(), img.Height()
	key := borderKey(pix)

	removed := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		i := y*w + x
		if removed[i] || distance(pix.NRGBAAt(x, y), key) > tol {
			return
		}
		removed[i] = true
		queue = append(queue, i)
	}
	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x, y := i%w, i/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := pix.PixOffset(x, y)
			if removed[y*w+x] {
				pix.Pix[off+3] = 0
				continue
			}
			// 背景に接する輪郭は色差に応じて半透明にする
			if touchesRemoved(removed, w, h, x, y) {
				d := distance(pix.NRGBAAt(x, y), key) - tol
				if d < tol {
					a := uint32(pix.Pix[off+3]) * uint32(d*255/tol) / 255
					pix.Pix[off+3] = uint8(a)
				}
			}
		}
	}
	return domain.NewImageAsset(pix), nil
}

// borderKey は外周画素を 4bit に量子化して最頻のバケットを選び、その平均色を返します。
func borderKey(pix *image.NRGBA) color.NRGBA {
	b := pix.Rect
	type acc struct{ n, r, g, b int }
	buckets := map[uint16]*acc{}
	var best *acc

	add := func(x, y int) {
		c := pix.NRGBAAt(x, y)
		k := uint16(c.R>>4)<<8 | uint16(c.G>>4)<<4 | uint16(c.B>>4)
		a, ok := buckets[k]
		if !ok {
			a = &acc{}
			buckets[k] = a
		}
		a.n++
		a.r += int(c.R)
		a.g += int(c.G)
		a.b += int(c.B)
		if best == nil || a.n > best.n {
			best = a
		}
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		add(x, b.Min.Y)
		add(x, b.Max.Y-1)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		add(b.Min.X, y)
		add(b.Max.X-1, y)
	}
	return color.NRGBA{R: uint8(best.r / best.n), G: uint8(best.g / best.n), B: uint8(best.b / best.n), A: 0xff}
}

func distance(c, key color.NRGBA) int {
	d := absDiff(c.R, key.R)
	if g := absDiff(c.G, key.G); g > d {
		d = g
	}
	if b := absDiff(c.B, key.B); b > d {
		d = b
	}
	return d
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func touchesRemoved(removed []bool, w, h, x, y int) bool {
	return (x > 0 && removed[y*w+x-1]) ||
		(x < w-1 && removed[y*w+x+1]) ||
		(y > 0 && removed[(y-1)*w+x]) ||
		(y < h-1 && removed[(y+1)*w+x])
}
