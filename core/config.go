package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/lisuiheng/xiaozhi-sink/audio"
	"github.com/lisuiheng/xiaozhi-sink/queue"
)

// Config 输出设备配置
type Config struct {
	SampleRate        int                  `mapstructure:"sample_rate"`
	Encoding          audio.Encoding       `mapstructure:"encoding"`
	OpusBitrate       int                  `mapstructure:"opus_bitrate"`
	OpusFrameDuration int                  `mapstructure:"opus_frame_duration"`
	QueueCapacity     int                  `mapstructure:"queue_capacity"` // <=0 表示不限
	QueueOverflow     queue.OverflowPolicy `mapstructure:"queue_overflow"`
	SendTimeout       time.Duration        `mapstructure:"send_timeout"` // 0 表示不限
}

// DefaultConfig 默认配置: 16kHz OPUS, 不限长队列
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Encoding:          audio.EncodingOpus,
		OpusBitrate:       audio.DefaultOpusBitrate,
		OpusFrameDuration: audio.DefaultOpusFrameDuration,
		QueueOverflow:     queue.OverflowBlock,
	}
}

// Validate 校验并规范化配置
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}

	enc, err := audio.ParseEncoding(string(c.Encoding))
	if err != nil {
		return err
	}
	c.Encoding = enc
	if enc == audio.EncodingOpus && !audio.IsOpusSampleRate(c.SampleRate) {
		return fmt.Errorf("sample_rate %d is not supported by opus", c.SampleRate)
	}

	overflow, err := queue.ParseOverflowPolicy(string(c.QueueOverflow))
	if err != nil {
		return err
	}
	c.QueueOverflow = overflow

	if c.SendTimeout < 0 {
		return errors.New("send_timeout must not be negative")
	}
	return nil
}

func (c Config) encoderConfig() audio.EncoderConfig {
	return audio.EncoderConfig{
		Encoding:      c.Encoding,
		SampleRate:    c.SampleRate,
		Bitrate:       c.OpusBitrate,
		FrameDuration: c.OpusFrameDuration,
	}
}
