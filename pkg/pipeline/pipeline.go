package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/reunion-image-kit/pkg/compositor"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/generator"
	"github.com/shouni/reunion-image-kit/pkg/imgutil"
	"github.com/shouni/reunion-image-kit/pkg/prompt"
)

// State は 1 回の実行の進行状態です。
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateGenerating  State = "generating"
	StateCompositing State = "compositing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Config は Pipeline の固定設定です。
type Config struct {
	Prompt    prompt.Options
	Composite bool
}

// DefaultConfig は白背景への合成を有効にした設定を返します。
func DefaultConfig() Config {
	return Config{Prompt: prompt.DefaultOptions(), Composite: true}
}

// Input は 1 回の実行に渡すアップロード済みの画像バイト列と追加オプションです。
// Background を指定すると Config の背景色より優先されます。
type Input struct {
	Child      []byte
	Adult      []byte
	Background *domain.Color
	Options    map[string]any
}

// Result は実行結果です。State は StateDone か StateFailed のいずれかで、
// Done なら Image、Failed なら Err が設定されます。
type Result struct {
	RunID   string
	State   State
	Trail   []State
	Image   *domain.ImageAsset
	Err     error
	Elapsed time.Duration
}

// Kind は失敗時のエラー種別を返します。成功時は空文字です。
func (r *Result) Kind() domain.ErrorKind {
	return domain.KindOf(r.Err)
}

// PNG は最終画像を PNG にエンコードします。
func (r *Result) PNG() ([]byte, error) {
	if r.State != StateDone || r.Image == nil {
		return nil, fmt.Errorf("run %s has no artifact (state: %s)", r.RunID, r.State)
	}
	return imgutil.EncodePNG(r.Image)
}

// Pipeline は検証・生成・背景合成を順に実行するオーケストレーターです。
// New の後は変更されないため、複数のゴルーチンから同時に Run できます。
type Pipeline struct {
	gen    generator.Generator
	comp   *compositor.Compositor
	cfg    Config
	logger *slog.Logger
}

// New は依存関係を注入して Pipeline を初期化します。
func New(gen generator.Generator, comp *compositor.Compositor, cfg Config, logger *slog.Logger) (*Pipeline, error) {
	const op = "pipeline.New"
	if gen == nil {
		return nil, domain.NewError(domain.KindConfig, op, "generator is required", nil)
	}
	if cfg.Composite && comp == nil {
		return nil, domain.NewError(domain.KindConfig, op, "compositor is required when compositing is enabled", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{gen: gen, comp: comp, cfg: cfg, logger: logger}, nil
}

// run は 1 回分の実行状態です。Run の呼び出しごとに作られ、共有されません。
type run struct {
	result *Result
	logger *slog.Logger
	start  time.Time
}

func (r *run) enter(ctx context.Context, s State) {
	r.result.State = s
	r.result.Trail = append(r.result.Trail, s)
	r.logger.DebugContext(ctx, "状態が遷移しました", "state", s)
}

func (r *run) fail(ctx context.Context, err error) (*Result, error) {
	from := r.result.State
	r.enter(ctx, StateFailed)
	r.result.Err = err
	r.result.Elapsed = time.Since(r.start)
	r.logger.WarnContext(ctx, "パイプラインが失敗しました", "from", from, "kind", domain.KindOf(err), "elapsed", r.result.Elapsed, "error", err)
	return r.result, err
}

// Run は入力を検証して生成 API を 1 回だけ呼び出し、必要なら背景を単色に置き換えます。
// 失敗時も Result を返し、その Err と同じエラーを第 2 戻り値で返します。
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	id := uuid.NewString()
	r := &run{
		result: &Result{RunID: id, State: StateIdle, Trail: []State{StateIdle}},
		logger: p.logger.With("run_id", id),
		start:  time.Now(),
	}
	r.logger.InfoContext(ctx, "パイプラインを開始します", "composite", p.cfg.Composite)

	r.enter(ctx, StateValidating)
	child, adult, err := validate(in)
	if err != nil {
		return r.fail(ctx, err)
	}

	promptOpts := p.cfg.Prompt
	if in.Background != nil {
		promptOpts.BackgroundColor = *in.Background
	}

	r.enter(ctx, StateGenerating)
	built := prompt.Build(promptOpts)
	opts := prompt.RequestOptions(promptOpts)
	for k, v := range in.Options {
		opts[k] = v
	}
	req, err := domain.NewGenerationRequest(built.Text, built.Negative, child, adult, promptOpts.BackgroundColor, opts)
	if err != nil {
		return r.fail(ctx, err)
	}
	img, err := p.gen.Generate(ctx, req)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindTransport, "pipeline.Generate", "generation failed", err)
		}
		return r.fail(ctx, err)
	}
	if img == nil {
		return r.fail(ctx, domain.NewError(domain.KindProtocol, "pipeline.Generate", "generator returned no image", nil))
	}

	if p.cfg.Composite {
		r.enter(ctx, StateCompositing)
		out, err := p.comp.Apply(ctx, img, promptOpts.BackgroundColor)
		if err != nil {
			if domain.KindOf(err) != domain.KindCompositing {
				err = domain.NewError(domain.KindCompositing, "pipeline.Composite", "compositing failed", err)
			}
			return r.fail(ctx, err)
		}
		img = out
	}

	r.enter(ctx, StateDone)
	r.result.Image = img
	r.result.Elapsed = time.Since(r.start)
	r.logger.InfoContext(ctx, "パイプラインが完了しました", "width", img.Width(), "height", img.Height(), "elapsed", r.result.Elapsed)
	return r.result, nil
}

// validate は両方の画像が揃っていてデコードできること、オプションがプリミティブであることを確認します。
// デコード失敗は DecodeError を包んだ ValidationError になります。
func validate(in Input) (*domain.ImageAsset, *domain.ImageAsset, error) {
	const op = "pipeline.validate"
	if len(in.Child) == 0 {
		return nil, nil, domain.NewError(domain.KindValidation, op, "child image is required", nil)
	}
	if len(in.Adult) == 0 {
		return nil, nil, domain.NewError(domain.KindValidation, op, "adult image is required", nil)
	}
	child, err := imgutil.Decode(in.Child)
	if err != nil {
		return nil, nil, domain.NewError(domain.KindValidation, op, "child image could not be decoded", err)
	}
	adult, err := imgutil.Decode(in.Adult)
	if err != nil {
		return nil, nil, domain.NewError(domain.KindValidation, op, "adult image could not be decoded", err)
	}
	if err := domain.ValidateOptions(in.Options); err != nil {
		return nil, nil, err
	}
	return child, adult, nil
}
