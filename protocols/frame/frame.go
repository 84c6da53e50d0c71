// protocols/frame/frame.go
package frame

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lisuiheng/xiaozhi-sink/pkg/transcript"
)

// MessageType 标识下行消息的种类
type MessageType string

const (
	TypeAudio      MessageType = "audio"
	TypeTranscript MessageType = "transcript"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// Frame 一条已经序列化好的下行消息
type Frame struct {
	Type MessageType
	Text string
}

type Envelope struct {
	Type MessageType `json:"type"`
}

// AudioMessage {"type":"audio","data":"<base64>"}
type AudioMessage struct {
	Type MessageType `json:"type"`
	Data string      `json:"data"`
}

// Bytes 返回解码后的音频负载
func (m AudioMessage) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.Data)
}

// TranscriptMessage {"type":"transcript", ...}
type TranscriptMessage struct {
	Type           MessageType `json:"type"`
	Text           string      `json:"text"`
	Sender         string      `json:"sender"`
	Timestamp      float64     `json:"timestamp"`
	ConversationID string      `json:"conversation_id,omitempty"`
}

// Event 还原为转写事件
func (m TranscriptMessage) Event() transcript.Event {
	sec, frac := math.Modf(m.Timestamp)
	return transcript.Event{
		Text:           m.Text,
		Sender:         transcript.Sender(m.Sender),
		Timestamp:      time.Unix(int64(sec), int64(frac*1e9)),
		ConversationID: m.ConversationID,
	}
}

// NewTranscriptMessage 从转写事件构造消息
func NewTranscriptMessage(event transcript.Event) TranscriptMessage {
	var ts float64
	if !event.Timestamp.IsZero() {
		ts = float64(event.Timestamp.UnixNano()) / 1e9
	}
	return TranscriptMessage{
		Type:           TypeTranscript,
		Text:           event.Text,
		Sender:         string(event.Sender),
		Timestamp:      ts,
		ConversationID: event.ConversationID,
	}
}

// FrameAudio base64编码后封装为音频消息
func FrameAudio(encoded []byte) (Frame, error) {
	return marshal(TypeAudio, AudioMessage{
		Type: TypeAudio,
		Data: base64.StdEncoding.EncodeToString(encoded),
	})
}

// FrameTranscript 封装转写消息
func FrameTranscript(event transcript.Event) (Frame, error) {
	return marshal(TypeTranscript, NewTranscriptMessage(event))
}

func marshal(t MessageType, msg any) (Frame, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s message: %w", t, err)
	}
	return Frame{Type: t, Text: string(b)}, nil
}

// Parse 解析一条下行消息, 返回 AudioMessage 或 TranscriptMessage
func Parse(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAudio:
		var msg AudioMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeTranscript:
		var msg TranscriptMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
}
