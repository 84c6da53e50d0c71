package core

import (
	"errors"
	"fmt"

	"github.com/lisuiheng/xiaozhi-sink/protocols/frame"
)

var (
	ErrDelivery   = errors.New("frame delivery failed")
	ErrTerminated = errors.New("output device terminated")
	ErrNilConn    = errors.New("connection cannot be nil")
	ErrNilLogger  = errors.New("logger cannot be nil")
)

// DeliveryError 发送循环写连接失败, 发送循环随之停止
type DeliveryError struct {
	FrameType frame.MessageType
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s frame: %v", e.FrameType, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }
