package generator

import (
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func imageResponse(t *testing.T, img *domain.ImageAsset) *gemini.Response {
	return &gemini.Response{
		RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: "image/png", Data: pngBytes(t, img)}}},
				},
			}},
		},
	}
}

func TestNewGeminiGenerator(t *testing.T) {
	t.Run("nilチェック: クライアントが無い場合は ConfigError なのだ", func(t *testing.T) {
		_, err := NewGeminiGenerator(nil, "model")
		assert.True(t, errors.Is(err, domain.ErrConfig))
	})

	t.Run("モデル名が空の場合も ConfigError なのだ", func(t *testing.T) {
		_, err := NewGeminiGenerator(&mockAIClient{}, "  ")
		assert.True(t, errors.Is(err, domain.ErrConfig))
	})
}

func TestGeminiGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	modelName := "gemini-2.5-flash-image"

	t.Run("成功: プロンプトと2枚の画像がパーツに入るのだ", func(t *testing.T) {
		generated := solidAsset(6, 6, color.NRGBA{G: 128, A: 255})
		ai := &mockAIClient{generate: func(ctx context.Context, parts []*genai.Part) (*gemini.Response, error) {
			return imageResponse(t, generated), nil
		}}
		gen, err := NewGeminiGenerator(ai, modelName)
		require.NoError(t, err)

		req := newRequest(t)
		req.Options["aspect_ratio"] = "3:4"
		req.Options["seed"] = 77

		got, err := gen.Generate(ctx, req)

		require.NoError(t, err)
		assert.True(t, generated.Equal(got))
		assert.Equal(t, modelName, ai.lastModel)
		// テキスト(1) + 画像(2) = 3パーツあるはずなのだ
		require.Len(t, ai.lastParts, 3)
		assert.True(t, strings.HasPrefix(ai.lastParts[0].Text, req.Prompt))
		assert.Contains(t, ai.lastParts[0].Text, "Avoid: watermark.")
		assert.Equal(t, "image/png", ai.lastParts[1].InlineData.MIMEType)
		assert.Equal(t, "3:4", ai.lastOpts.AspectRatio)
		require.NotNil(t, ai.lastOpts.Seed)
		assert.Equal(t, int64(77), *ai.lastOpts.Seed)
	})

	t.Run("圧縮有効時は JPEG で送るのだ", func(t *testing.T) {
		ai := &mockAIClient{generate: func(ctx context.Context, parts []*genai.Part) (*gemini.Response, error) {
			return imageResponse(t, solidAsset(2, 2, color.NRGBA{A: 255})), nil
		}}
		gen, _ := NewGeminiGenerator(ai, modelName, WithInputCompression(true))

		_, err := gen.Generate(ctx, newRequest(t))

		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", ai.lastParts[1].InlineData.MIMEType)
		assert.Equal(t, "image/jpeg", ai.lastParts[2].InlineData.MIMEType)
	})

	t.Run("失敗: AIクライアントのエラーは TransportError になるのだ", func(t *testing.T) {
		expectedErr := errors.New("ai error")
		ai := &mockAIClient{generate: func(ctx context.Context, parts []*genai.Part) (*gemini.Response, error) {
			return nil, expectedErr
		}}
		gen, _ := NewGeminiGenerator(ai, modelName)

		_, err := gen.Generate(ctx, newRequest(t))

		assert.True(t, errors.Is(err, domain.ErrTransport))
		assert.True(t, errors.Is(err, expectedErr))
	})

	t.Run("失敗: 画像なしの応答は ProtocolError なのだ", func(t *testing.T) {
		ai := &mockAIClient{generate: func(ctx context.Context, parts []*genai.Part) (*gemini.Response, error) {
			return &gemini.Response{RawResponse: &genai.GenerateContentResponse{}}, nil
		}}
		gen, _ := NewGeminiGenerator(ai, modelName)

		_, err := gen.Generate(ctx, newRequest(t))

		assert.True(t, errors.Is(err, domain.ErrProtocol))
		assert.Contains(t, err.Error(), "Gemini生成レスポンス解析エラー")
	})

	t.Run("失敗: 応答しないクライアントはタイムアウトするのだ", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		ai := &mockAIClient{generate: func(ctx context.Context, parts []*genai.Part) (*gemini.Response, error) {
			<-block
			return nil, nil
		}}
		gen, _ := NewGeminiGenerator(ai, modelName, WithGeminiTimeout(30*time.Millisecond))

		start := time.Now()
		_, err := gen.Generate(ctx, newRequest(t))

		assert.True(t, errors.Is(err, domain.ErrTransport))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("失敗: 画像が欠けていればクライアントを呼ばないのだ", func(t *testing.T) {
		ai := &mockAIClient{}
		gen, _ := NewGeminiGenerator(ai, modelName)

		_, err := gen.Generate(ctx, domain.GenerationRequest{Prompt: "p"})

		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.Equal(t, 0, ai.calls)
	})
}
