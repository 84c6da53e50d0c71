// protocols/websocket/transport.go
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lisuiheng/xiaozhi-sink/pkg/interfaces"
)

var _ interfaces.Connection = (*Conn)(nil)

// Conn 基于gorilla/websocket的连接, 服务端和客户端共用
type Conn struct {
	conn      *websocket.Conn
	msgChan   chan interfaces.Message
	closeChan chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	mu        sync.Mutex
}

// DialConfig 客户端连接参数
type DialConfig struct {
	URL             string
	AccessToken     string
	ProtocolVersion int
	DeviceID        string
	ClientID        string
}

// Wrap 包装服务端已经升级好的连接
func Wrap(conn *websocket.Conn) *Conn {
	c := &Conn{
		conn:      conn,
		msgChan:   make(chan interfaces.Message, 100),
		closeChan: make(chan struct{}),
	}
	go c.readPump()
	return c
}

// Dial 连接到服务端
func Dial(ctx context.Context, cfg DialConfig) (*Conn, error) {
	headers := http.Header{}
	if cfg.AccessToken != "" {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", cfg.AccessToken))
	}
	if cfg.ProtocolVersion > 0 {
		headers.Set("Protocol-Version", fmt.Sprintf("%d", cfg.ProtocolVersion))
	}
	if cfg.DeviceID != "" {
		headers.Set("Device-Id", cfg.DeviceID)
	}
	if cfg.ClientID != "" {
		headers.Set("Client-Id", cfg.ClientID)
	}

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConnectionFailed, err)
	}
	return Wrap(conn), nil
}

func (c *Conn) readPump() {
	defer close(c.msgChan)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case c.msgChan <- interfaces.Message{Payload: data, Type: convertMsgType(msgType)}:
		case <-c.closeChan:
			return
		}
	}
}

func convertMsgType(wsType int) interfaces.MessageType {
	switch wsType {
	case websocket.TextMessage:
		return interfaces.MsgText
	case websocket.BinaryMessage:
		return interfaces.MsgBinary
	default:
		return interfaces.MsgControl
	}
}

// Send 发送一条文本消息
//
// ctx 的截止时间作为写超时, ctx 取消会中断正在进行的写入.
func (c *Conn) Send(ctx context.Context, text string) error {
	if c.closed.Load() {
		return interfaces.ErrConnectionClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.NetConn().SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if c.closed.Load() || errors.Is(err, websocket.ErrCloseSent) {
			return fmt.Errorf("%w: %v", interfaces.ErrConnectionClosed, err)
		}
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Receive 返回对端发来的消息, 连接断开后通道关闭
func (c *Conn) Receive() <-chan interfaces.Message {
	return c.msgChan
}

// CloseWithReason 发送关闭帧后关闭连接
func (c *Conn) CloseWithReason(code int, reason string) error {
	if !c.closed.Load() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	return c.Close()
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closeChan)
		err = c.conn.Close()
	})
	return err
}
