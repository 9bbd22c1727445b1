package imgutil

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// Decode はアップロードされた画像バイト列（PNG, JPEG, GIF）をデコードします。
// 空・破損・未対応フォーマットの場合は DecodeError を返します。
func Decode(data []byte) (*domain.ImageAsset, error) {
	if len(data) == 0 {
		return nil, domain.NewError(domain.KindDecode, "Decode", "empty image data", nil)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewError(domain.KindDecode, "Decode", "unsupported or malformed image", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, domain.NewError(domain.KindDecode, "Decode", "image has zero size", nil)
	}
	return domain.NewImageAsset(img), nil
}

// EncodePNG は画像を PNG にエンコードします。同じ画像からは常に同じバイト列が得られます。
func EncodePNG(img *domain.ImageAsset) ([]byte, error) {
	if img == nil {
		return nil, domain.NewError(domain.KindDecode, "EncodePNG", "image is nil", nil)
	}
	buf := new(bytes.Buffer)
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(buf, img); err != nil {
		return nil, domain.NewError(domain.KindDecode, "EncodePNG", "png encoding failed", err)
	}
	return buf.Bytes(), nil
}

// EncodeToTransport は画像を PNG にしてから標準 base64 文字列に変換します。
func EncodeToTransport(img *domain.ImageAsset) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeFromTransport は base64 文字列（data URI 形式も可）を画像にデコードします。
func DecodeFromTransport(s string) (*domain.ImageAsset, error) {
	data, err := decodeBase64(s)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("transport payload: %w", err)
	}
	return img, nil
}

func decodeBase64(s string) ([]byte, error) {
	payload := strings.TrimSpace(s)
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 || !strings.Contains(payload[:idx], ";base64") {
			return nil, domain.NewError(domain.KindDecode, "DecodeFromTransport", "malformed data URI", nil)
		}
		payload = payload[idx+1:]
	}
	if payload == "" {
		return nil, domain.NewError(domain.KindDecode, "DecodeFromTransport", "empty payload", nil)
	}

	// パディング有無の両方を受け付ける
	enc := base64.StdEncoding
	if !strings.HasSuffix(payload, "=") && len(payload)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	data, err := enc.DecodeString(payload)
	if err != nil {
		return nil, domain.NewError(domain.KindDecode, "DecodeFromTransport", "invalid base64", err)
	}
	return data, nil
}
