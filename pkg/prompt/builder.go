package prompt

import (
	"fmt"
	"strings"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// Options はプロンプトに反映する設定です。同じ Options からは常に同じプロンプトが生成されます。
type Options struct {
	BackgroundColor domain.Color
	SoftLighting    bool
	Photorealistic  bool
	Style           string // 任意の画風指定。空なら追加しない
}

// Prompt はモデルに渡す指示文と除外指示です。
type Prompt struct {
	Text     string
	Negative string
}

// DefaultOptions は白背景・柔らかいライティング・写実調の既定設定を返します。
func DefaultOptions() Options {
	return Options{
		BackgroundColor: domain.White,
		SoftLighting:    true,
		Photorealistic:  true,
	}
}

// Build は大人の本人が子どもの頃の本人と手をつなぐ構図の指示文を組み立てます。
func Build(opts Options) Prompt {
	parts := []string{
		"Create a realistic photo where the adult person from the recent photo is holding hands with the child from the old photo.",
		"Make it look natural, warm, and emotionally authentic.",
		"Match facial identity from each respective input.",
		"Ensure correct proportions (adult and child).",
	}
	if opts.SoftLighting {
		parts = append(parts, "Soft studio-like lighting, gentle shadows.")
	}
	parts = append(parts, fmt.Sprintf("Replace background with pure smooth solid color (%s).", opts.BackgroundColor.Hex()))
	if style := strings.TrimSpace(opts.Style); style != "" {
		parts = append(parts, "Visual style: "+style+".")
	}
	parts = append(parts, "No text, no watermark, no extra people.")
	if opts.Photorealistic {
		parts = append(parts, "High detail, photorealistic.")
	}

	negative := []string{
		"text", "watermark", "logo", "extra people", "extra limbs",
		"deformed hands", "distorted faces", "blurry", "busy background",
	}
	return Prompt{
		Text:     strings.Join(parts, " "),
		Negative: strings.Join(negative, ", "),
	}
}

// RequestOptions は生成 API にプロンプトと並べて送る追加パラメータを返します。
func RequestOptions(opts Options) map[string]any {
	out := map[string]any{
		"background":    opts.BackgroundColor.Hex(),
		"soft_lighting": opts.SoftLighting,
	}
	if style := strings.TrimSpace(opts.Style); style != "" {
		out["style"] = style
	}
	return out
}
