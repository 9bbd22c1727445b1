package domain

import (
	"errors"
	"fmt"
)

// ErrorKind はパイプラインの失敗種別です。UI 層はこの値で表示メッセージを切り替えます。
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindConfig      ErrorKind = "config"
	KindDecode      ErrorKind = "decode"
	KindTransport   ErrorKind = "transport"
	KindProtocol    ErrorKind = "protocol"
	KindCompositing ErrorKind = "compositing"
)

// 種別ごとの比較用センチネル。errors.Is(err, ErrTransport) のように使います。
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrConfig      = &Error{Kind: KindConfig}
	ErrDecode      = &Error{Kind: KindDecode}
	ErrTransport   = &Error{Kind: KindTransport}
	ErrProtocol    = &Error{Kind: KindProtocol}
	ErrCompositing = &Error{Kind: KindCompositing}
)

// Error は種別付きのエラーです。
// StatusCode は TransportError で HTTP ステータスが得られた場合のみ設定されます。
type Error struct {
	Kind       ErrorKind
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is は種別が一致すれば true を返します。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError は種別付きのエラーを生成します。
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf はエラーチェーンの最も外側にある *Error の種別を返します。
// *Error を含まない場合は空文字を返します。
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
