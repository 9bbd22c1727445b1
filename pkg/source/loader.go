package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// DefaultMaxImageBytes は 1 枚の入力画像として受け付ける最大サイズです。
const DefaultMaxImageBytes = 32 << 20

// HTTPClient は、URLからデータを取得するためのインターフェースです。
// httpkit のクライアントがこれを満たします。
type HTTPClient interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Loader はローカルパス、http(s) URL、gs:// URI から画像のバイト列を読み込みます。
type Loader struct {
	httpClient HTTPClient
	reader     remoteio.InputReader
	cache      ImageCacher
	cacheTTL   time.Duration
	maxBytes   int64
	urlCheck   func(string) (bool, error)
	logger     *slog.Logger
}

// LoaderOption は Loader の設定を変更します。
type LoaderOption func(*Loader)

// WithCache は取得済みの画像を保存するキャッシュを設定します。
func WithCache(cache ImageCacher, ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		l.cache = cache
		l.cacheTTL = ttl
	}
}

// WithMaxImageBytes は読み込むバイト数の上限を変更します。
func WithMaxImageBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithURLValidator は http(s) URL の検証関数を差し替えます。
func WithURLValidator(fn func(string) (bool, error)) LoaderOption {
	return func(l *Loader) {
		if fn != nil {
			l.urlCheck = fn
		}
	}
}

// WithLoaderLogger はログ出力先を差し替えます。
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader は Loader を初期化します。httpClient や reader が nil の場合、
// 対応するスキームの読み込みは ConfigError になります。
func NewLoader(httpClient HTTPClient, reader remoteio.InputReader, opts ...LoaderOption) *Loader {
	l := &Loader{
		httpClient: httpClient,
		reader:     reader,
		maxBytes:   DefaultMaxImageBytes,
		urlCheck:   IsSafeURL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load は ref が指す画像のバイト列を返します。
func (l *Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	const op = "source.Load"
	if ref == "" {
		return nil, domain.NewError(domain.KindValidation, op, "image reference is empty", nil)
	}

	if l.cache != nil && !isLocal(ref) {
		if val, ok := l.cache.Get(ref); ok {
			if data, ok := val.([]byte); ok {
				return data, nil
			}
			l.logger.WarnContext(ctx, "キャッシュデータが不正な型です", "ref", ref, "type", fmt.Sprintf("%T", val))
		}
	}

	var (
		data []byte
		err  error
	)
	switch {
	case isGCS(ref):
		data, err = l.loadGCS(ctx, ref)
	case isHTTP(ref):
		data, err = l.loadHTTP(ctx, ref)
	default:
		data, err = l.loadFile(ref)
	}
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, domain.NewError(domain.KindValidation, op, fmt.Sprintf("image exceeds %d bytes: %s", l.maxBytes, ref), nil)
	}

	if l.cache != nil && !isLocal(ref) {
		l.cache.Set(ref, data, l.cacheTTL)
	}
	return data, nil
}

func (l *Loader) loadHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	const op = "source.loadHTTP"
	if l.httpClient == nil {
		return nil, domain.NewError(domain.KindConfig, op, "http client is not configured", nil)
	}
	if safe, err := l.urlCheck(rawURL); err != nil || !safe {
		l.logger.WarnContext(ctx, "SSRFの可能性がある、または不正なURLをブロックしました", "url", rawURL, "error", err)
		return nil, domain.NewError(domain.KindValidation, op, "安全ではないURLが指定されました", err)
	}
	data, err := l.httpClient.FetchBytes(ctx, rawURL)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, op, "画像のダウンロードに失敗しました", err)
	}
	return data, nil
}

func (l *Loader) loadGCS(ctx context.Context, uri string) ([]byte, error) {
	const op = "source.loadGCS"
	if l.reader == nil {
		return nil, domain.NewError(domain.KindConfig, op, "gs:// reader is not configured", nil)
	}
	rc, err := l.reader.Open(ctx, uri)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, op, "failed to open "+uri, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, l.maxBytes+1))
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, op, "failed to read "+uri, err)
	}
	return data, nil
}

func (l *Loader) loadFile(path string) ([]byte, error) {
	const op = "source.loadFile"
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewError(domain.KindValidation, op, "file not found: "+path, err)
		}
		return nil, domain.NewError(domain.KindValidation, op, "cannot open "+path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, l.maxBytes+1))
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, op, "cannot read "+path, err)
	}
	return data, nil
}

func isLocal(ref string) bool {
	return !isGCS(ref) && !isHTTP(ref)
}
