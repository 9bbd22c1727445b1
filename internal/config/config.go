package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shouni/reunion-image-kit/pkg/compositor"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/generator"
)

const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"

	ExtractorKey   = "key"
	ExtractorRembg = "rembg"

	DefaultGeminiModel = "gemini-2.5-flash-image"
)

// Config は環境変数から読み込んだアプリケーション設定です。
// main で一度だけ読み込み、各コンポーネントへ明示的に渡します。
type Config struct {
	Backend      string
	APIURL       string
	APIKey       string
	RequireToken bool
	Timeout      time.Duration

	GeminiAPIKey string
	GeminiModel  string

	Background   domain.Color
	Composite    bool
	Extractor    string
	RembgURL     string
	KeyTolerance int

	FetchTimeout time.Duration
	CacheEntries int
	CacheTTL     time.Duration

	Port      string
	LogLevel  slog.Level
	LogFormat string
}

// Load は .env ファイル（files を省略した場合はカレントディレクトリの .env があれば）を読み込んでから、
// 環境変数を既定値付きで解釈します。必須項目が欠けている場合は ConfigError を返します。
func Load(files ...string) (*Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, domain.NewError(domain.KindConfig, op, "error loading .env file", err)
		}
	}

	env := &envReader{}
	cfg := &Config{
		Backend:      strings.ToLower(getEnv("REUNION_BACKEND", BackendHTTP)),
		APIURL:       getEnv("REUNION_API_URL", os.Getenv("NANO_BANANA_API_URL")),
		APIKey:       getEnv("REUNION_API_KEY", os.Getenv("NANO_BANANA_API_KEY")),
		RequireToken: env.bool("REUNION_REQUIRE_TOKEN", false),
		Timeout:      env.seconds("REUNION_TIMEOUT_SECONDS", generator.DefaultTimeout),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", DefaultGeminiModel),
		Composite:    env.bool("REUNION_COMPOSITE", true),
		Extractor:    strings.ToLower(getEnv("REUNION_EXTRACTOR", ExtractorKey)),
		RembgURL:     os.Getenv("REMBG_URL"),
		KeyTolerance: env.int("REUNION_KEY_TOLERANCE", compositor.DefaultKeyTolerance),
		FetchTimeout: env.seconds("FETCH_TIMEOUT_SECONDS", 30*time.Second),
		CacheEntries: env.int("REUNION_CACHE_ENTRIES", 64),
		CacheTTL:     env.seconds("REUNION_CACHE_TTL_SECONDS", 600*time.Second),
		Port:         getEnv("PORT", "8080"),
		LogFormat:    strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	if env.err != nil {
		return nil, env.err
	}

	bg, err := domain.ParseColor(getEnv("REUNION_BACKGROUND", domain.White.Hex()))
	if err != nil {
		return nil, domain.NewError(domain.KindConfig, op, "REUNION_BACKGROUND is invalid", err)
	}
	cfg.Background = bg

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "INFO"))); err != nil {
		return nil, domain.NewError(domain.KindConfig, op, "LOG_LEVEL is invalid", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	const op = "config.validate"
	switch c.Backend {
	case BackendHTTP:
		if c.APIURL == "" {
			return domain.NewError(domain.KindConfig, op, "REUNION_API_URL (or NANO_BANANA_API_URL) is required for the http backend", nil)
		}
		if c.RequireToken && c.APIKey == "" {
			return domain.NewError(domain.KindConfig, op, "REUNION_API_KEY is required when REUNION_REQUIRE_TOKEN is set", nil)
		}
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return domain.NewError(domain.KindConfig, op, "GEMINI_API_KEY is required for the gemini backend", nil)
		}
	default:
		return domain.NewError(domain.KindConfig, op, fmt.Sprintf("unknown REUNION_BACKEND %q", c.Backend), nil)
	}

	if c.Timeout <= 0 {
		return domain.NewError(domain.KindConfig, op, "REUNION_TIMEOUT_SECONDS must be positive", nil)
	}
	if c.FetchTimeout <= 0 {
		return domain.NewError(domain.KindConfig, op, "FETCH_TIMEOUT_SECONDS must be positive", nil)
	}
	if c.CacheEntries < 0 || c.CacheTTL < 0 {
		return domain.NewError(domain.KindConfig, op, "REUNION_CACHE_ENTRIES and REUNION_CACHE_TTL_SECONDS must not be negative", nil)
	}

	switch c.Extractor {
	case ExtractorKey:
		if c.KeyTolerance < 1 || c.KeyTolerance > compositor.MaxKeyTolerance {
			return domain.NewError(domain.KindConfig, op,
				fmt.Sprintf("REUNION_KEY_TOLERANCE must be between 1 and %d, got %d", compositor.MaxKeyTolerance, c.KeyTolerance), nil)
		}
	case ExtractorRembg:
		if c.Composite && c.RembgURL == "" {
			return domain.NewError(domain.KindConfig, op, "REMBG_URL is required for the rembg extractor", nil)
		}
	default:
		return domain.NewError(domain.KindConfig, op, fmt.Sprintf("unknown REUNION_EXTRACTOR %q", c.Extractor), nil)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return domain.NewError(domain.KindConfig, op, fmt.Sprintf("unknown LOG_FORMAT %q", c.LogFormat), nil)
	}
	return nil
}

// Endpoint は HTTP バックエンドの接続先を返します。
func (c *Config) Endpoint() generator.Endpoint {
	return generator.Endpoint{
		URL:          c.APIURL,
		Token:        c.APIKey,
		RequireToken: c.RequireToken,
		Timeout:      c.Timeout,
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// envReader は数値・真偽値の環境変数を解釈し、最初の解釈エラーを保持します。
type envReader struct {
	err error
}

func (r *envReader) fail(key, v, want string, err error) {
	if r.err == nil {
		r.err = domain.NewError(domain.KindConfig, "config.Load", fmt.Sprintf("%s must be %s, got %q", key, want, v), err)
	}
}

func (r *envReader) int(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, "an integer", err)
		return fallback
	}
	return i
}

func (r *envReader) seconds(key string, fallback time.Duration) time.Duration {
	return time.Duration(r.int(key, int(fallback/time.Second))) * time.Second
}

func (r *envReader) bool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, "a boolean", err)
		return fallback
	}
	return b
}
