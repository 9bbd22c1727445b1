package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
	"google.golang.org/genai"
)

// GeminiGenerator は Gemini の画像モデル（いわゆる nano banana）で生成するバックエンドなのだ。
// プロンプトと 2 枚の入力画像をインラインパーツとして 1 回のリクエストで送るのだ。
type GeminiGenerator struct {
	aiClient gemini.GenerativeModel
	model    string
	timeout  time.Duration
	compress bool
	logger   *slog.Logger
}

// GeminiOption は GeminiGenerator の設定を変更するのだ。
type GeminiOption func(*GeminiGenerator)

// WithGeminiTimeout は 1 回の生成で待つ最大時間を設定するのだ。
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(g *GeminiGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithInputCompression は入力画像を JPEG に圧縮して送るかどうかを設定するのだ。
func WithInputCompression(enabled bool) GeminiOption {
	return func(g *GeminiGenerator) { g.compress = enabled }
}

// WithGeminiLogger はログ出力先を差し替えるのだ。
func WithGeminiLogger(l *slog.Logger) GeminiOption {
	return func(g *GeminiGenerator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGeminiGenerator は GeminiGenerator を初期化するのだ。
// クライアントかモデル名が欠けていれば ConfigError を返すのだ。
func NewGeminiGenerator(aiClient gemini.GenerativeModel, model string, opts ...GeminiOption) (*GeminiGenerator, error) {
	const op = "generator.NewGeminiGenerator"
	if aiClient == nil {
		return nil, domain.NewError(domain.KindConfig, op, "aiClient (gemini.GenerativeModel) is required", nil)
	}
	if strings.TrimSpace(model) == "" {
		return nil, domain.NewError(domain.KindConfig, op, "model is required", nil)
	}

	g := &GeminiGenerator{
		aiClient: aiClient,
		model:    strings.TrimSpace(model),
		timeout:  DefaultTimeout,
		compress: UseImageCompression,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate は子どもと大人の画像を参照して 1 枚の画像を生成するのだ。
func (g *GeminiGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.ImageAsset, error) {
	const op = "generator.GeminiGenerator.Generate"

	if req.Child == nil || req.Adult == nil {
		return nil, domain.NewError(domain.KindValidation, op, "child and adult images are required", nil)
	}

	parts := []*genai.Part{{Text: geminiInstruction(req)}}
	for _, img := range []*domain.ImageAsset{req.Child, req.Adult} {
		part, err := g.imagePart(img, req.BackgroundColor)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	opts := gemini.GenerateOptions{
		AspectRatio: stringOption(req.Options, "aspect_ratio"),
		Seed:        seedFromOptions(req.Options),
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	g.logger.InfoContext(ctx, "Gemini生成リクエスト準備完了", "model", g.model, "parts", len(parts), "compressed", g.compress)
	start := time.Now()

	resp, err := await(ctx, func() (*gemini.Response, error) {
		return g.aiClient.GenerateWithParts(ctx, g.model, parts, opts)
	})
	if err != nil {
		g.logger.WarnContext(ctx, "Gemini生成に失敗しました", "model", g.model, "elapsed", time.Since(start), "error", err)
		return nil, transportError(ctx, op, g.timeout, err)
	}

	img, err := parseToResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("Gemini生成レスポンス解析エラー: %w", err)
	}
	g.logger.InfoContext(ctx, "Gemini生成画像を受信しました", "width", img.Width(), "height", img.Height(), "elapsed", time.Since(start))
	return img, nil
}

func (g *GeminiGenerator) imagePart(img *domain.ImageAsset, bg domain.Color) (*genai.Part, error) {
	var (
		data []byte
		err  error
	)
	if g.compress {
		data, err = imgutil.EncodeJPEG(img, ImageCompressionQuality, bg)
	} else {
		data, err = imgutil.EncodePNG(img)
	}
	if err != nil {
		return nil, err
	}
	part := toPart(data)
	if part == nil {
		return nil, domain.NewError(domain.KindDecode, "generator.imagePart", "encoded data is not an image", nil)
	}
	return part, nil
}

// geminiInstruction は Gemini にはネガティブプロンプト欄がないため、本文に除外指示を追記するのだ。
func geminiInstruction(req domain.GenerationRequest) string {
	text := req.Prompt + "\nThe first image is the old photo (child). The second image is the recent photo (adult)."
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		text += "\nAvoid: " + neg + "."
	}
	return text
}

func stringOption(opts map[string]any, key string) string {
	if s, ok := opts[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
