// synth/script.go
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lisuiheng/xiaozhi-sink/audio"
	"github.com/lisuiheng/xiaozhi-sink/pkg/transcript"
)

// Sink 接收合成结果的一方, *core.OutputDevice 满足该接口
type Sink interface {
	ConsumeAudio(ctx context.Context, pcm []byte) error
	ConsumeTranscript(ctx context.Context, event transcript.Event) error
}

// Line 脚本中的一句话
type Line struct {
	Sender transcript.Sender `mapstructure:"sender"`
	Text   string            `mapstructure:"text"`
}

// Config 演示生产者参数
type Config struct {
	Frequency     float64       `mapstructure:"frequency"`
	Amplitude     float64       `mapstructure:"amplitude"`
	ChunkDuration time.Duration `mapstructure:"chunk_duration"`
	WordDuration  time.Duration `mapstructure:"word_duration"` // 每个词对应的音频时长
	Realtime      bool          `mapstructure:"realtime"`      // 按音频时长节奏产出
	Script        []Line        `mapstructure:"script"`
}

func DefaultConfig() Config {
	return Config{
		Frequency:     440,
		Amplitude:     0.3,
		ChunkDuration: 100 * time.Millisecond,
		WordDuration:  250 * time.Millisecond,
		Script: []Line{
			{Sender: transcript.SenderHuman, Text: "hello"},
			{Sender: transcript.SenderBot, Text: "hi there, how can I help you today?"},
		},
	}
}

// Producer 按脚本为每句bot台词生成一段音频, 随后发出转写事件
type Producer struct {
	config Config
	tone   *Tone
	logger *slog.Logger
}

func NewProducer(cfg Config, sampleRate int, log *slog.Logger) (*Producer, error) {
	if cfg.ChunkDuration <= 0 {
		return nil, errors.New("chunk duration must be positive")
	}
	if cfg.WordDuration <= 0 {
		return nil, errors.New("word duration must be positive")
	}
	tone, err := NewTone(sampleRate, cfg.Frequency, cfg.Amplitude)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Producer{config: cfg, tone: tone, logger: log}, nil
}

// Run 把整个脚本送入sink, ctx取消时提前返回
//
// 单个音频块编码失败只记录日志, 其他错误终止生产.
func (p *Producer) Run(ctx context.Context, sink Sink) error {
	for i, line := range p.config.Script {
		if line.Sender == transcript.SenderBot {
			if err := p.speak(ctx, sink, line.Text); err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
		}

		if err := sink.ConsumeTranscript(ctx, transcript.New(line.Sender, line.Text)); err != nil {
			return fmt.Errorf("line %d transcript: %w", i, err)
		}
		p.logger.Debug("Produced transcript", "sender", line.Sender, "text", line.Text)
	}
	return nil
}

func (p *Producer) speak(ctx context.Context, sink Sink, text string) error {
	words := len(strings.Fields(text))
	if words == 0 {
		return nil
	}
	remaining := time.Duration(words) * p.config.WordDuration

	var ticker *time.Ticker
	if p.config.Realtime {
		ticker = time.NewTicker(p.config.ChunkDuration)
		defer ticker.Stop()
	}

	for remaining > 0 {
		chunk := min(remaining, p.config.ChunkDuration)
		remaining -= chunk

		err := sink.ConsumeAudio(ctx, p.tone.Chunk(chunk))
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrEncoding):
			p.logger.Warn("Skipping audio chunk", "error", err)
		default:
			return err
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
