// audio/interface.go
package audio

import (
	"fmt"
	"strings"
)

const (
	// Channels 固定为单声道
	Channels = 1
	// SampleWidth 每个采样的字节数(16-bit)
	SampleWidth = 2
)

// Encoding 定义输出给客户端的音频编码
type Encoding string

const (
	EncodingLinear16 Encoding = "linear16" // 原始PCM16小端
	EncodingWAV      Encoding = "wav"      // RIFF/WAVE封装的PCM16
	EncodingOpus     Encoding = "opus"     // OPUS压缩包流
)

// ParseEncoding 解析配置中的编码名称
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(s))) {
	case EncodingLinear16, "pcm", "pcm16":
		return EncodingLinear16, nil
	case EncodingWAV:
		return EncodingWAV, nil
	case EncodingOpus:
		return EncodingOpus, nil
	default:
		return "", fmt.Errorf("unsupported audio encoding: %q", s)
	}
}

// Encoder 将PCM16单声道数据转换为可传输的字节序列
type Encoder interface {
	Encode(pcm []byte) ([]byte, error)
	Encoding() Encoding
	SampleRate() int
}

// Decoder 将编码后的数据还原为PCM16小端数据
type Decoder interface {
	Decode(data []byte) ([]byte, error)
}

// EncoderConfig 编码器参数
type EncoderConfig struct {
	Encoding   Encoding
	SampleRate int
	// Bitrate 仅用于OPUS
	Bitrate int
	// FrameDuration 仅用于OPUS, 单位毫秒
	FrameDuration int
}

// NewEncoder 根据配置创建编码器
func NewEncoder(cfg EncoderConfig) (Encoder, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", cfg.SampleRate)
	}

	switch cfg.Encoding {
	case EncodingLinear16, "":
		return &linear16Codec{sampleRate: cfg.SampleRate}, nil
	case EncodingWAV:
		return &WAVEncoder{sampleRate: cfg.SampleRate}, nil
	case EncodingOpus:
		return NewOpusEncoder(cfg.SampleRate, cfg.Bitrate, cfg.FrameDuration)
	default:
		return nil, fmt.Errorf("unsupported audio encoding: %q", cfg.Encoding)
	}
}

// NewDecoder 根据配置创建与编码器对应的解码器
func NewDecoder(cfg EncoderConfig) (Decoder, error) {
	switch cfg.Encoding {
	case EncodingLinear16, "":
		return &linear16Codec{sampleRate: cfg.SampleRate}, nil
	case EncodingWAV:
		return &WAVDecoder{}, nil
	case EncodingOpus:
		return NewOpusDecoder()
	default:
		return nil, fmt.Errorf("unsupported audio encoding: %q", cfg.Encoding)
	}
}
