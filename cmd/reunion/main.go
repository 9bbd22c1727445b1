package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shouni/reunion-image-kit/internal/config"
	"github.com/shouni/reunion-image-kit/internal/server"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/pipeline"
)

const usage = `usage:
  reunion generate -child <path|url|gs://> -adult <path|url|gs://> -out <path|gs://> [-background #RRGGBB] [-no-composite] [-env .env]
  reunion serve [-env .env]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "generate":
		err = runGenerate(ctx, args[1:], stderr)
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(stderr, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		kind := domain.KindOf(err)
		if kind == "" {
			kind = "error"
		}
		fmt.Fprintf(stderr, "reunion: %s: %v\n", kind, err)
		return 1
	}
	return 0
}

type generateFlags struct {
	child       string
	adult       string
	out         string
	background  string
	noComposite bool
	envFile     string
}

func parseGenerateFlags(args []string, stderr io.Writer) (*generateFlags, error) {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &generateFlags{}
	fs.StringVar(&f.child, "child", "", "子どもの頃の写真 (パス, http(s) URL, gs:// URI)")
	fs.StringVar(&f.adult, "adult", "", "最近の写真 (パス, http(s) URL, gs:// URI)")
	fs.StringVar(&f.out, "out", "aiedit_output.png", "出力先 (パスまたは gs:// URI)")
	fs.StringVar(&f.background, "background", "", "背景色 (#RRGGBB)。省略時は REUNION_BACKGROUND")
	fs.BoolVar(&f.noComposite, "no-composite", false, "背景の除去と単色合成を行わない")
	fs.StringVar(&f.envFile, "env", "", "読み込む .env ファイル")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.child == "" || f.adult == "" {
		return nil, domain.NewError(domain.KindValidation, "generate", "-child and -adult are required", nil)
	}
	return f, nil
}

func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		return config.Load(envFile)
	}
	return config.Load()
}

func runGenerate(ctx context.Context, args []string, stderr io.Writer) error {
	f, err := parseGenerateFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f.envFile)
	if err != nil {
		return err
	}
	if f.background != "" {
		if cfg.Background, err = domain.ParseColor(f.background); err != nil {
			return err
		}
	}
	if f.noComposite {
		cfg.Composite = false
	}

	logger := newLogger(cfg, stderr)
	slog.SetDefault(logger)

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	loader, store, cleanup, err := buildLoader(ctx, cfg, logger, usesGCS(f.child, f.adult, f.out))
	if err != nil {
		return err
	}
	defer cleanup()

	child, err := loader.Load(ctx, f.child)
	if err != nil {
		return fmt.Errorf("child: %w", err)
	}
	adult, err := loader.Load(ctx, f.adult)
	if err != nil {
		return fmt.Errorf("adult: %w", err)
	}

	res, err := p.Run(ctx, pipeline.Input{Child: child, Adult: adult})
	if err != nil {
		return err
	}
	data, err := res.PNG()
	if err != nil {
		return err
	}
	if err := writeOutput(ctx, store, f.out, data); err != nil {
		return fmt.Errorf("出力の保存に失敗しました: %w", err)
	}
	logger.InfoContext(ctx, "生成画像を保存しました", "run_id", res.RunID, "out", f.out, "elapsed", res.Elapsed)
	return nil
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", "", "読み込む .env ファイル")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, stderr)
	slog.SetDefault(logger)

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	h, err := server.NewHandler(p, server.DefaultMaxUploadBytes, logger)
	if err != nil {
		return err
	}
	srv := server.NewHTTPServer(cfg.Port, server.NewRouter(h), serverWriteTimeout(cfg))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("APIサーバーを起動します", "addr", srv.Addr(), "backend", cfg.Backend, "composite", cfg.Composite)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("サーバーの停止に失敗しました: %w", err)
	}
	logger.Info("APIサーバーを停止しました")
	return nil
}
