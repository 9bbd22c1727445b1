package generator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
	"google.golang.org/genai"
)

// extractImage は JSON レスポンスから keys の順に画像フィールドを探し、最初に見つかったものをデコードします。
// null や空文字のフィールドは存在しないものとして次のキーを試します。
func extractImage(body []byte, keys []string) (*domain.ImageAsset, string, error) {
	const op = "generator.extractImage"

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, "", domain.NewError(domain.KindProtocol, op, "response is not a JSON object", err)
	}

	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			continue
		}
		var payload string
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, key, domain.NewError(domain.KindProtocol, op, fmt.Sprintf("field %q is not a string", key), err)
		}
		if strings.TrimSpace(payload) == "" {
			continue
		}
		img, err := imgutil.DecodeFromTransport(payload)
		if err != nil {
			return nil, key, domain.NewError(domain.KindProtocol, op, fmt.Sprintf("field %q does not contain a valid image", key), err)
		}
		return img, key, nil
	}

	return nil, "", domain.NewError(domain.KindProtocol, op,
		fmt.Sprintf("no image field found in response (tried %s)", strings.Join(keys, ", ")), nil)
}

// toPart はバイト列を genai.Part (InlineData) に変換します。画像以外は nil を返します。
func toPart(data []byte) *genai.Part {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
}

// parseToResponse は Gemini のレスポンスから最初の画像パーツを取り出してデコードします。
func parseToResponse(resp *gemini.Response) (*domain.ImageAsset, error) {
	const op = "generator.parseToResponse"

	if resp == nil || resp.RawResponse == nil || len(resp.RawResponse.Candidates) == 0 {
		return nil, domain.NewError(domain.KindProtocol, op, "Geminiからの有効な応答がありませんでした", nil)
	}

	// 最初の候補 (Candidate) のみを利用する
	candidate := resp.RawResponse.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			img, err := imgutil.Decode(part.InlineData.Data)
			if err != nil {
				return nil, domain.NewError(domain.KindProtocol, op, "画像パーツのデコードに失敗しました", err)
			}
			return img, nil
		}
	}

	// 安全フィルター等によるブロックの確認
	if candidate.FinishReason != "" && candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		return nil, domain.NewError(domain.KindProtocol, op, fmt.Sprintf("画像生成が異常終了しました (FinishReason: %s)", candidate.FinishReason), nil)
	}
	return nil, domain.NewError(domain.KindProtocol, op, "画像データが見つかりませんでした", nil)
}
