// pkg/transcript/event.go
package transcript

import "time"

// Sender 标识说话的一方
type Sender string

const (
	SenderBot   Sender = "bot"
	SenderHuman Sender = "human"
)

// Event 上游产生的一条转写事件
type Event struct {
	Text           string
	Sender         Sender
	Timestamp      time.Time
	ConversationID string
}

// New 以当前时间创建转写事件
func New(sender Sender, text string) Event {
	return Event{
		Text:      text,
		Sender:    sender,
		Timestamp: time.Now(),
	}
}
