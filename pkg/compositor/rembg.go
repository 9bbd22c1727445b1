package compositor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
)

const (
	rembgRemovePath       = "/api/remove"
	defaultRembgTimeout   = 60 * time.Second
	maxRembgResponseBytes = 64 << 20
)

// RembgExtractor は rembg のサーバーモード (POST /api/remove) で背景を除去します。
type RembgExtractor struct {
	baseURL    string
	httpClient *resty.Client
	timeout    time.Duration
}

// NewRembgExtractor は RembgExtractor を初期化します。httpClient が nil なら既定の http.Client を使います。
func NewRembgExtractor(baseURL string, httpClient *http.Client, timeout time.Duration) (*RembgExtractor, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, domain.NewError(domain.KindConfig, "compositor.NewRembgExtractor", "rembg base URL is required", nil)
	}
	rc := resty.New()
	if httpClient != nil {
		rc = resty.NewWithClient(httpClient)
	}
	if timeout <= 0 {
		timeout = defaultRembgTimeout
	}
	return &RembgExtractor{baseURL: base, httpClient: rc, timeout: timeout}, nil
}

// Extract は画像を PNG で送信し、透過 PNG を受け取ってデコードします。
func (r *RembgExtractor) Extract(ctx context.Context, img *domain.ImageAsset) (*domain.ImageAsset, error) {
	const op = "compositor.RembgExtractor.Extract"

	data, err := imgutil.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.httpClient.R().
		SetContext(ctx).
		SetHeader("Accept", "image/png").
		SetFileReader("file", "image.png", bytes.NewReader(data)).
		SetDoNotParseResponse(true).
		Post(r.baseURL + rembgRemovePath)
	if err != nil {
		return nil, domain.NewError(domain.KindCompositing, op, "rembg request failed", err)
	}
	rc := resp.RawBody()
	defer rc.Close()

	out, err := io.ReadAll(io.LimitReader(rc, maxRembgResponseBytes))
	if err != nil {
		return nil, domain.NewError(domain.KindCompositing, op, "failed to read rembg response", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		e := domain.NewError(domain.KindCompositing, op, fmt.Sprintf("rembg returned http %d", resp.StatusCode()), nil)
		e.StatusCode = resp.StatusCode()
		return nil, e
	}

	cutout, err := imgutil.Decode(out)
	if err != nil {
		return nil, domain.NewError(domain.KindCompositing, op, "rembg returned an invalid image", err)
	}
	return cutout, nil
}
