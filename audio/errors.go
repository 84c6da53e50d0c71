package audio

import (
	"errors"
	"fmt"
)

// ErrEncoding 所有编码失败都可以用 errors.Is 匹配到它
var ErrEncoding = errors.New("audio encoding failed")

// EncodingError 单个音频块编码失败, 只影响当前块
type EncodingError struct {
	Encoding Encoding
	Reason   string
	Err      error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode %s: %s: %v", e.Encoding, e.Reason, e.Err)
	}
	return fmt.Sprintf("encode %s: %s", e.Encoding, e.Reason)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

func encodingError(enc Encoding, reason string, err error) error {
	return &EncodingError{Encoding: enc, Reason: reason, Err: err}
}
