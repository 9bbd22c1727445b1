package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
)

// Client は JSON で画像生成 API を呼び出す HTTP バックエンドです。
// 呼び出し間で状態を持たないため、複数のゴルーチンから同時に利用できます。
type Client struct {
	httpClient   *resty.Client
	responseKeys []string
	maxBody      int64
	logger       *slog.Logger
}

// Option は Client の設定を変更します。
type Option func(*Client)

// WithHTTPClient は送信に使う *http.Client を差し替えます。リトライは設定しません。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = resty.NewWithClient(hc)
		}
	}
}

// WithResponseKeys はレスポンスから画像を探すキーの優先順を差し替えます。
func WithResponseKeys(keys ...string) Option {
	return func(c *Client) {
		if len(keys) > 0 {
			c.responseKeys = append([]string(nil), keys...)
		}
	}
}

// WithMaxResponseBytes はレスポンスボディの読み取り上限を変更します。
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithLogger はログ出力先を差し替えます。
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient は Client を初期化します。タイムアウトは Endpoint ごとに context で制御するため、
// 既定の resty クライアントにはタイムアウトを設定しません。
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   resty.New(),
		responseKeys: append([]string(nil), DefaultResponseKeys...),
		maxBody:      DefaultMaxResponseBytes,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind は接続先を固定した Generator を返します。
func (c *Client) Bind(ep Endpoint) Generator {
	return &boundClient{client: c, endpoint: ep}
}

type boundClient struct {
	client   *Client
	endpoint Endpoint
}

func (b *boundClient) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.ImageAsset, error) {
	return b.client.Generate(ctx, req, b.endpoint)
}

type rawResponse struct {
	status int
	body   []byte
}

// Generate は生成リクエストを 1 回だけ送信し、レスポンスから画像を取り出します。
// 接続先や認証情報が不足している場合は通信を行わずに ConfigError を返します。
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest, ep Endpoint) (*domain.ImageAsset, error) {
	const op = "generator.Generate"

	if err := ep.validate(); err != nil {
		return nil, err
	}
	if req.Child == nil || req.Adult == nil {
		return nil, domain.NewError(domain.KindValidation, op, "child and adult images are required", nil)
	}

	body, err := buildPayload(req)
	if err != nil {
		return nil, err
	}

	timeout := ep.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(body).
		SetDoNotParseResponse(true)
	if token := strings.TrimSpace(ep.Token); token != "" {
		httpReq.SetAuthToken(token)
	}

	c.logger.InfoContext(ctx, "生成APIにリクエストします", "host", ep.host(), "timeout", timeout, "payload_bytes", len(body))
	start := time.Now()

	raw, err := await(ctx, func() (*rawResponse, error) {
		resp, err := httpReq.Post(strings.TrimSpace(ep.URL))
		if err != nil {
			return nil, err
		}
		rc := resp.RawBody()
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, c.maxBody+1))
		if err != nil {
			return nil, err
		}
		return &rawResponse{status: resp.StatusCode(), body: data}, nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "生成APIの呼び出しに失敗しました", "host", ep.host(), "elapsed", time.Since(start), "error", err)
		return nil, transportError(ctx, op, timeout, err)
	}

	if raw.status < 200 || raw.status > 299 {
		e := domain.NewError(domain.KindTransport, op, fmt.Sprintf("http %d: %s", raw.status, snippet(raw.body)), nil)
		e.StatusCode = raw.status
		c.logger.WarnContext(ctx, "生成APIがエラーを返しました", "status", raw.status, "elapsed", time.Since(start))
		return nil, e
	}
	if int64(len(raw.body)) > c.maxBody {
		return nil, domain.NewError(domain.KindProtocol, op, fmt.Sprintf("response exceeds %d bytes", c.maxBody), nil)
	}

	img, key, err := extractImage(raw.body, c.responseKeys)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "生成画像を受信しました", "key", key, "width", img.Width(), "height", img.Height(), "elapsed", time.Since(start))
	return img, nil
}

func buildPayload(req domain.GenerationRequest) ([]byte, error) {
	const op = "generator.buildPayload"

	childB64, err := imgutil.EncodeToTransport(req.Child)
	if err != nil {
		return nil, fmt.Errorf("child image: %w", err)
	}
	adultB64, err := imgutil.EncodeToTransport(req.Adult)
	if err != nil {
		return nil, fmt.Errorf("adult image: %w", err)
	}

	payload := make(map[string]any, len(req.Options)+4)
	for k, v := range req.Options {
		payload[k] = v
	}
	payload["prompt"] = req.Prompt
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		payload["negative_prompt"] = neg
	} else {
		delete(payload, "negative_prompt")
	}
	payload["child_image_base64"] = childB64
	payload["adult_image_base64"] = adultB64

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, op, "request options are not serializable", err)
	}
	return body, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > errorSnippetLimit {
		s = s[:errorSnippetLimit] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
