package compositor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
)

// ForegroundExtractor は背景ピクセルを透明にした同じ寸法の画像を返す外部機能です。
type ForegroundExtractor interface {
	Extract(ctx context.Context, img *domain.ImageAsset) (*domain.ImageAsset, error)
}

// Compositor は背景除去と単色背景への合成を担当します。
type Compositor struct {
	extractor ForegroundExtractor
	logger    *slog.Logger
}

// New は依存関係を注入して Compositor を初期化します。
func New(extractor ForegroundExtractor, logger *slog.Logger) (*Compositor, error) {
	if extractor == nil {
		return nil, domain.NewError(domain.KindConfig, "compositor.New", "extractor is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{extractor: extractor, logger: logger}, nil
}

// RemoveBackground は前景抽出を委譲し、失敗や寸法の不一致を CompositingError として返します。
func (c *Compositor) RemoveBackground(ctx context.Context, img *domain.ImageAsset) (*domain.ImageAsset, error) {
	const op = "compositor.RemoveBackground"
	if img == nil {
		return nil, domain.NewError(domain.KindCompositing, op, "image is nil", nil)
	}
	if img.Width() == 0 || img.Height() == 0 {
		return nil, domain.NewError(domain.KindCompositing, op, "image has no pixels", nil)
	}

	out, err := c.extractor.Extract(ctx, img)
	if err != nil {
		return nil, domain.NewError(domain.KindCompositing, op, "foreground extraction failed", err)
	}
	if out == nil {
		return nil, domain.NewError(domain.KindCompositing, op, "foreground extraction returned no image", nil)
	}
	if !out.SameSize(img) {
		return nil, domain.NewError(domain.KindCompositing, op,
			fmt.Sprintf("foreground extraction changed size from %dx%d to %dx%d", img.Width(), img.Height(), out.Width(), out.Height()), nil)
	}
	return out, nil
}

// CompositeOnColor は bg で塗りつぶしたキャンバスに透過画像を重ね、完全不透明な画像を返します。
// 透過ピクセルを持たない画像は背景除去前とみなし、CompositingError を返します。
func CompositeOnColor(img *domain.ImageAsset, bg domain.Color) (*domain.ImageAsset, error) {
	const op = "compositor.CompositeOnColor"
	if img == nil {
		return nil, domain.NewError(domain.KindCompositing, op, "image is nil", nil)
	}
	if !img.HasTransparency() {
		return nil, domain.NewError(domain.KindCompositing, op, "image has no transparency; remove the background first", nil)
	}
	return imgutil.Flatten(img, bg), nil
}

// Apply は RemoveBackground と CompositeOnColor をこの順で実行します。
func (c *Compositor) Apply(ctx context.Context, img *domain.ImageAsset, bg domain.Color) (*domain.ImageAsset, error) {
	cutout, err := c.RemoveBackground(ctx, img)
	if err != nil {
		c.logger.WarnContext(ctx, "背景除去に失敗しました", "error", err)
		return nil, err
	}
	out, err := CompositeOnColor(cutout, bg)
	if err != nil {
		c.logger.WarnContext(ctx, "背景合成に失敗しました", "error", err)
		return nil, err
	}
	c.logger.InfoContext(ctx, "背景を単色に置き換えました", "background", bg.Hex(), "width", out.Width(), "height", out.Height())
	return out, nil
}
