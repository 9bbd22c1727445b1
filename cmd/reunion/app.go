package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/reunion-image-kit/internal/config"
	"github.com/shouni/reunion-image-kit/pkg/compositor"
	"github.com/shouni/reunion-image-kit/pkg/generator"
	"github.com/shouni/reunion-image-kit/pkg/pipeline"
	"github.com/shouni/reunion-image-kit/pkg/prompt"
	"github.com/shouni/reunion-image-kit/pkg/source"
)

// newLogger は LOG_FORMAT と LOG_LEVEL に従ってロガーを生成します。
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildGenerator は REUNION_BACKEND に応じた Generator を組み立てます。
func buildGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (generator.Generator, error) {
	switch cfg.Backend {
	case config.BackendGemini:
		client, err := gemini.NewClient(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey})
		if err != nil {
			return nil, fmt.Errorf("Gemini クライアントの初期化に失敗しました: %w", err)
		}
		return generator.NewGeminiGenerator(client, cfg.GeminiModel,
			generator.WithGeminiTimeout(cfg.Timeout),
			generator.WithGeminiLogger(logger),
		)
	default:
		return generator.NewClient(generator.WithLogger(logger)).Bind(cfg.Endpoint()), nil
	}
}

// buildCompositor は REUNION_EXTRACTOR に応じた前景抽出器で Compositor を組み立てます。
func buildCompositor(cfg *config.Config, logger *slog.Logger) (*compositor.Compositor, error) {
	var extractor compositor.ForegroundExtractor
	switch cfg.Extractor {
	case config.ExtractorRembg:
		r, err := compositor.NewRembgExtractor(cfg.RembgURL, nil, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		extractor = r
	default:
		extractor = compositor.KeyExtractor{Tolerance: cfg.KeyTolerance}
	}
	return compositor.New(extractor, logger)
}

// serverWriteTimeout は 1 リクエストが待ちうる外部呼び出しの合計に、アップロードと応答の余裕を足した値です。
// rembg を使う場合は生成と背景除去がそれぞれ cfg.Timeout まで待ちます。
func serverWriteTimeout(cfg *config.Config) time.Duration {
	budget := cfg.Timeout
	if cfg.Timeout <= 0 {
		budget = generator.DefaultTimeout
	}
	if cfg.Composite && cfg.Extractor == config.ExtractorRembg {
		budget *= 2
	}
	return budget + time.Minute
}

// buildPipeline は設定から Pipeline を組み立てます。
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	gen, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var comp *compositor.Compositor
	if cfg.Composite {
		if comp, err = buildCompositor(cfg, logger); err != nil {
			return nil, err
		}
	}

	promptOpts := prompt.DefaultOptions()
	promptOpts.BackgroundColor = cfg.Background
	return pipeline.New(gen, comp, pipeline.Config{Prompt: promptOpts, Composite: cfg.Composite}, logger)
}

// buildLoader は入力画像の読み込み元を組み立てます。gs:// を使う場合のみ Cloud Storage に接続します。
func buildLoader(ctx context.Context, cfg *config.Config, logger *slog.Logger, needGCS bool) (*source.Loader, *source.GCSStore, func(), error) {
	opts := []source.LoaderOption{source.WithLoaderLogger(logger)}
	if cfg.CacheEntries > 0 {
		cache, err := source.NewMemoryCache(cfg.CacheEntries)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, source.WithCache(cache, cfg.CacheTTL))
	}

	cleanup := func() {}
	var store *source.GCSStore
	if needGCS {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("GCS クライアントの初期化に失敗しました: %w", err)
		}
		cleanup = func() { _ = client.Close() }
		if store, err = source.NewGCSStore(client); err != nil {
			cleanup()
			return nil, nil, nil, err
		}
	}

	// nil の *GCSStore をそのまま渡すと非 nil のインターフェースになる
	var reader remoteio.InputReader
	if store != nil {
		reader = store
	}
	loader := source.NewLoader(httpkit.New(cfg.FetchTimeout), reader, opts...)
	return loader, store, cleanup, nil
}

// writeOutput は生成結果をローカルファイルまたは gs:// に保存します。
func writeOutput(ctx context.Context, store *source.GCSStore, dst string, data []byte) error {
	if strings.HasPrefix(dst, "gs://") {
		if store == nil {
			return fmt.Errorf("gs:// への保存には GCS クライアントが必要です")
		}
		return store.Write(ctx, dst, data, "image/png")
	}
	return os.WriteFile(dst, data, 0o644)
}

func usesGCS(refs ...string) bool {
	for _, r := range refs {
		if strings.HasPrefix(r, "gs://") {
			return true
		}
	}
	return false
}
