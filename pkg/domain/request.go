package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Color は背景に使う不透明な RGB 色です。
type Color struct {
	R, G, B uint8
}

// White は既定の背景色 (#FFFFFF) です。
var White = Color{R: 0xff, G: 0xff, B: 0xff}

// ParseColor は "#RRGGBB"、"RRGGBB"、"#RGB" 形式の文字列を Color に変換します。
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return Color{}, NewError(KindValidation, "ParseColor", fmt.Sprintf("invalid color %q", s), nil)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, NewError(KindValidation, "ParseColor", fmt.Sprintf("invalid color %q", s), err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Hex は "#RRGGBB" 形式の文字列を返します。
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// GenerationRequest は 1 回の生成要求です。NewGenerationRequest で生成し、以後は変更しません。
type GenerationRequest struct {
	Prompt          string
	NegativePrompt  string
	Child           *ImageAsset
	Adult           *ImageAsset
	BackgroundColor Color
	Options         map[string]any
}

// NewGenerationRequest は入力を検証して GenerationRequest を生成します。
// 子ども・大人どちらかの画像が欠けている場合や、オプション値がプリミティブでない場合は
// ValidationError を返します。Options はコピーして保持します。
func NewGenerationRequest(prompt, negative string, child, adult *ImageAsset, bg Color, opts map[string]any) (GenerationRequest, error) {
	const op = "NewGenerationRequest"
	if child == nil {
		return GenerationRequest{}, NewError(KindValidation, op, "child image is required", nil)
	}
	if adult == nil {
		return GenerationRequest{}, NewError(KindValidation, op, "adult image is required", nil)
	}
	if strings.TrimSpace(prompt) == "" {
		return GenerationRequest{}, NewError(KindValidation, op, "prompt is required", nil)
	}
	if err := ValidateOptions(opts); err != nil {
		return GenerationRequest{}, err
	}

	copied := make(map[string]any, len(opts))
	for k, v := range opts {
		copied[k] = v
	}
	return GenerationRequest{
		Prompt:          prompt,
		NegativePrompt:  negative,
		Child:           child,
		Adult:           adult,
		BackgroundColor: bg,
		Options:         copied,
	}, nil
}

// ValidateOptions はオプション値が JSON のプリミティブ（文字列、真偽値、数値、nil）のみであることを確認します。
func ValidateOptions(opts map[string]any) error {
	for k, v := range opts {
		if strings.TrimSpace(k) == "" {
			return NewError(KindValidation, "ValidateOptions", "option key must not be empty", nil)
		}
		switch v.(type) {
		case nil, string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return NewError(KindValidation, "ValidateOptions", fmt.Sprintf("option %q has non-primitive type %T", k, v), nil)
		}
	}
	return nil
}
