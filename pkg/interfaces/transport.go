// pkg/interfaces/transport.go
package interfaces

import (
	"context"
	"errors"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection 输出设备使用的双向连接, 只需要发送文本帧
type Connection interface {
	// Send 发送一条文本消息, ctx 取消时应尽快中断正在进行的写入
	Send(ctx context.Context, text string) error
	Close() error
}

type Message struct {
	Payload []byte
	Type    MessageType
}

type MessageType int

const (
	MsgText    MessageType = iota // JSON文本
	MsgBinary                     // 二进制数据
	MsgControl                    // 控制指令
)
