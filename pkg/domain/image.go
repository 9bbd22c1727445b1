package domain

import (
	"image"
	"image/color"
	"image/draw"
)

// ColorMode はデコード済み画像のチャンネル構成です。
type ColorMode string

const (
	ModeRGB  ColorMode = "RGB"
	ModeRGBA ColorMode = "RGBA"
)

// ImageAsset はデコード済みのラスター画像です。
// 生成後は変更されません。ピクセルは非乗算済み 8bit RGBA で保持し、
// 原点は常に (0,0) に正規化されます。
type ImageAsset struct {
	pix  *image.NRGBA
	mode ColorMode
}

// NewImageAsset は任意の image.Image をコピーして ImageAsset を生成します。
// 元の画像は以後変更しても ImageAsset に影響しません。
func NewImageAsset(src image.Image) *ImageAsset {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			srcOff := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], n.Pix[srcOff:srcOff+b.Dx()*4])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	}
	return &ImageAsset{pix: dst, mode: detectMode(dst)}
}

func detectMode(img *image.NRGBA) ColorMode {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return ModeRGBA
		}
	}
	return ModeRGB
}

func (a *ImageAsset) Width() int  { return a.pix.Rect.Dx() }
func (a *ImageAsset) Height() int { return a.pix.Rect.Dy() }

// Mode は ModeRGB（完全不透明）か ModeRGBA（透過ピクセルあり）を返します。
func (a *ImageAsset) Mode() ColorMode { return a.mode }

// HasTransparency はアルファ値が 255 未満のピクセルを含むかどうかを返します。
func (a *ImageAsset) HasTransparency() bool { return a.mode == ModeRGBA }

// ColorModel, Bounds, At は image.Image を満たすためのメソッドです。
func (a *ImageAsset) ColorModel() color.Model { return color.NRGBAModel }
func (a *ImageAsset) Bounds() image.Rectangle { return a.pix.Rect }
func (a *ImageAsset) At(x, y int) color.Color { return a.pix.NRGBAAt(x, y) }

// NRGBAAt は指定座標の色を返します。
func (a *ImageAsset) NRGBAAt(x, y int) color.NRGBA {
	return a.pix.NRGBAAt(x, y)
}

// NRGBA はピクセルデータのコピーを返します。
func (a *ImageAsset) NRGBA() *image.NRGBA {
	out := image.NewNRGBA(a.pix.Rect)
	copy(out.Pix, a.pix.Pix)
	return out
}

// SameSize は 2 つの画像の寸法が一致するかどうかを返します。
func (a *ImageAsset) SameSize(other *ImageAsset) bool {
	if other == nil {
		return false
	}
	return a.Width() == other.Width() && a.Height() == other.Height()
}

// Equal はピクセル単位で完全一致するかどうかを返します。
func (a *ImageAsset) Equal(other *ImageAsset) bool {
	if !a.SameSize(other) {
		return false
	}
	for y := 0; y < a.Height(); y++ {
		for x := 0; x < a.Width(); x++ {
			if a.pix.NRGBAAt(x, y) != other.pix.NRGBAAt(x, y) {
				return false
			}
		}
	}
	return true
}
