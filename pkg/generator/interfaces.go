package generator

import (
	"context"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// Generator はパイプラインが利用する画像生成の窓口です。
// 実装は 1 回の呼び出しにつき 1 回だけ外部 API を呼び出し、自動リトライは行いません。
type Generator interface {
	// Generate は子ども・大人の画像とプロンプトから合成画像を生成します。
	// 失敗時のエラーは種別 (domain.ErrorKind) を保持した *domain.Error です。
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.ImageAsset, error)
}
