package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/shouni/reunion-image-kit/pkg/pipeline"
)

const (
	// DefaultMaxUploadBytes はリクエスト全体として受け付ける最大サイズです。
	DefaultMaxUploadBytes int64 = 32 << 20
	// OutputFileName はダウンロード時のファイル名です。
	OutputFileName = "aiedit_output.png"
)

// Runner は 1 回のパイプライン実行を表します。*pipeline.Pipeline が満たします。
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// Handler は HTTP ハンドラー群です。
type Handler struct {
	runner    Runner
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler は Handler を初期化します。maxUpload が 0 以下なら DefaultMaxUploadBytes を使います。
func NewHandler(runner Runner, maxUpload int64, logger *slog.Logger) (*Handler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, maxUpload: maxUpload, logger: logger}, nil
}

type errorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
	RunID   string           `json:"run_id,omitempty"`
}

// Health は死活監視用のエンドポイントです。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateReunion は multipart の child / adult 画像（と任意の background）を受け取り、
// 生成した PNG を添付ファイルとして返します。
func (h *Handler) CreateReunion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", middleware.GetReqID(ctx))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "",
				domain.NewError(domain.KindValidation, "server.CreateReunion", fmt.Sprintf("upload exceeds %d bytes", h.maxUpload), nil))
			return
		}
		h.writeError(w, http.StatusBadRequest, "",
			domain.NewError(domain.KindValidation, "server.CreateReunion", "multipart form is required", err))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	in := pipeline.Input{}
	var err error
	if in.Child, err = formFile(r.MultipartForm, "child"); err != nil {
		h.writeError(w, http.StatusBadRequest, "", err)
		return
	}
	if in.Adult, err = formFile(r.MultipartForm, "adult"); err != nil {
		h.writeError(w, http.StatusBadRequest, "", err)
		return
	}
	if v := r.FormValue("background"); v != "" {
		c, err := domain.ParseColor(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "", err)
			return
		}
		in.Background = &c
	}
	if v := r.FormValue("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "",
				domain.NewError(domain.KindValidation, "server.CreateReunion", "seed must be an integer", err))
			return
		}
		in.Options = map[string]any{"seed": seed}
	}

	res, err := h.runner.Run(ctx, in)
	if err != nil {
		runID := ""
		if res != nil {
			runID = res.RunID
		}
		logger.WarnContext(ctx, "生成リクエストが失敗しました", "run_id", runID, "kind", domain.KindOf(err), "error", err)
		h.writeError(w, statusFor(err), runID, err)
		return
	}

	data, err := res.PNG()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, res.RunID, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", OutputFileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Run-ID", res.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	logger.InfoContext(ctx, "生成画像を返却しました", "run_id", res.RunID, "bytes", len(data), "elapsed", res.Elapsed)
}

// statusFor はエラー種別を HTTP ステータスに変換します。
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindDecode:
		return http.StatusBadRequest
	case domain.KindTransport:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case domain.KindProtocol:
		return http.StatusBadGateway
	case domain.KindCompositing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, runID string, err error) {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindConfig || kind == "" {
		// 設定や内部エラーの詳細はクライアントへ返さない
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Kind: kind, Message: msg, RunID: runID})
}

func formFile(form *multipart.Form, field string) ([]byte, error) {
	const op = "server.formFile"
	// 欠けている画像はパイプラインの検証で ValidationError になる
	if form == nil || len(form.File[field]) == 0 {
		return nil, nil
	}
	f, err := form.File[field][0].Open()
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, op, "cannot open "+field+" upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, op, "cannot read "+field+" upload", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
