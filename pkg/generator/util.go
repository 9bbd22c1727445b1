package generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shouni/reunion-image-kit/pkg/domain"
)

// seedFromOptions はオプションの "seed" を *int64 として取り出すのだ。
func seedFromOptions(opts map[string]any) *int64 {
	var v int64
	switch s := opts["seed"].(type) {
	case int:
		v = int64(s)
	case int32:
		v = int64(s)
	case int64:
		v = s
	case float64:
		if s != math.Trunc(s) {
			return nil
		}
		v = int64(s)
	default:
		return nil
	}
	return &v
}

// await は fn を別ゴルーチンで実行し、ctx の期限で待ちを打ち切るのだ。
// fn が ctx を無視して戻らなくても呼び出し元は期限で解放されるのだ。
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{val: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// transportError は通信エラーを TransportError に分類するのだ。
func transportError(ctx context.Context, op string, timeout time.Duration, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return domain.NewError(domain.KindTransport, op, fmt.Sprintf("request timed out after %s", timeout), err)
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return domain.NewError(domain.KindTransport, op, "request canceled", err)
	default:
		return domain.NewError(domain.KindTransport, op, "request failed", err)
	}
}
