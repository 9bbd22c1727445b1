package generator

import (
	"encoding/json"
	"errors"
	"image/color"
	"testing"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// extractImage のテスト（キーの優先順）
func TestExtractImage(t *testing.T) {
	first := solidAsset(2, 2, color.NRGBA{R: 255, A: 255})
	second := solidAsset(3, 3, color.NRGBA{G: 255, A: 255})

	body := func(m map[string]any) []byte {
		data, err := json.Marshal(m)
		require.NoError(t, err)
		return data
	}

	t.Run("先頭のキーが優先される", func(t *testing.T) {
		img, key, err := extractImage(body(map[string]any{
			"result":       pngBase64(t, second),
			"image_base64": pngBase64(t, first),
		}), DefaultResponseKeys)
		require.NoError(t, err)
		assert.Equal(t, "image_base64", key)
		assert.True(t, first.Equal(img))
	})

	t.Run("null や空文字は無視して次のキーを使う", func(t *testing.T) {
		img, key, err := extractImage(body(map[string]any{
			"image_base64":  nil,
			"output_base64": "",
			"result":        pngBase64(t, second),
		}), DefaultResponseKeys)
		require.NoError(t, err)
		assert.Equal(t, "result", key)
		assert.True(t, second.Equal(img))
	})

	t.Run("独自キーを指定できる", func(t *testing.T) {
		_, key, err := extractImage(body(map[string]any{"png": pngBase64(t, first)}), []string{"png"})
		require.NoError(t, err)
		assert.Equal(t, "png", key)
	})

	t.Run("どのキーもなければ ProtocolError", func(t *testing.T) {
		_, _, err := extractImage(body(map[string]any{"other": "x"}), DefaultResponseKeys)
		assert.True(t, errors.Is(err, domain.ErrProtocol))
		assert.Contains(t, err.Error(), "image_base64, output_base64, result")
	})
}

// parseToResponse のテスト
func TestParseToResponse(t *testing.T) {
	generated := solidAsset(5, 4, color.NRGBA{B: 255, A: 255})

	t.Run("正常系", func(t *testing.T) {
		resp := &gemini.Response{
			RawResponse: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{
						Content: &genai.Content{
							Parts: []*genai.Part{
								{Text: "here you go"},
								{InlineData: &genai.Blob{MIMEType: "image/png", Data: pngBytes(t, generated)}},
							},
						},
					},
				},
			},
		}

		img, err := parseToResponse(resp)
		require.NoError(t, err)
		assert.True(t, generated.Equal(img))
	})

	t.Run("異常系: 画像データなし", func(t *testing.T) {
		resp := &gemini.Response{
			RawResponse: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{Content: &genai.Content{Parts: []*genai.Part{{Text: "just text"}}}},
				},
			},
		}
		_, err := parseToResponse(resp)
		assert.True(t, errors.Is(err, domain.ErrProtocol))
	})

	t.Run("異常系: FinishReason が SAFETY", func(t *testing.T) {
		resp := &gemini.Response{
			RawResponse: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			},
		}
		_, err := parseToResponse(resp)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrProtocol))
		assert.Contains(t, err.Error(), "FinishReason")
	})

	t.Run("異常系: 壊れた画像データ", func(t *testing.T) {
		resp := &gemini.Response{
			RawResponse: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("not-png")}},
				}}}},
			},
		}
		_, err := parseToResponse(resp)
		assert.True(t, errors.Is(err, domain.ErrProtocol))
		assert.True(t, errors.Is(err, domain.ErrDecode))
	})

	t.Run("異常系: nil レスポンス", func(t *testing.T) {
		_, err := parseToResponse(nil)
		assert.True(t, errors.Is(err, domain.ErrProtocol))
	})
}

func TestToPart(t *testing.T) {
	part := toPart(pngBytes(t, solidAsset(1, 1, color.NRGBA{A: 255})))
	require.NotNil(t, part)
	assert.Equal(t, "image/png", part.InlineData.MIMEType)

	assert.Nil(t, toPart([]byte("plain text")))
}
