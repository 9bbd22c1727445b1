package generator

import (
	"net/url"
	"strings"
	"time"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

const (
	// DefaultTimeout は Endpoint.Timeout 未指定時の待ち時間です。
	DefaultTimeout = 180 * time.Second
	// DefaultMaxResponseBytes はレスポンスボディの読み取り上限です。
	DefaultMaxResponseBytes int64 = 64 << 20

	UseImageCompression     = false
	ImageCompressionQuality = 90

	errorSnippetLimit = 512
)

// DefaultResponseKeys は生成 API のレスポンスから画像を探すキーの優先順です。
var DefaultResponseKeys = []string{"image_base64", "output_base64", "result"}

// Endpoint は生成 API の接続先と認証情報です。呼び出しごとに明示的に渡します。
type Endpoint struct {
	URL          string
	Token        string
	RequireToken bool          // true の場合、Token が空なら ConfigError
	Timeout      time.Duration // 0 以下なら DefaultTimeout
}

func (e Endpoint) validate() error {
	const op = "Endpoint.validate"
	raw := strings.TrimSpace(e.URL)
	if raw == "" {
		return domain.NewError(domain.KindConfig, op, "endpoint URL is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return domain.NewError(domain.KindConfig, op, "endpoint URL is invalid", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewError(domain.KindConfig, op, "endpoint URL must be an absolute http(s) URL", nil)
	}
	if e.RequireToken && strings.TrimSpace(e.Token) == "" {
		return domain.NewError(domain.KindConfig, op, "API token is required for this endpoint", nil)
	}
	return nil
}

func (e Endpoint) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

// host はログ出力用に認証情報を含まないホスト名を返します。
func (e Endpoint) host() string {
	u, err := url.Parse(strings.TrimSpace(e.URL))
	if err != nil {
		return ""
	}
	return u.Host
}
