package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lisuiheng/xiaozhi-sink/core"
	"github.com/lisuiheng/xiaozhi-sink/logger"
	"github.com/lisuiheng/xiaozhi-sink/synth"
	"github.com/spf13/viper"
)

// Config sinkd 的完整配置
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Device  core.Config   `mapstructure:"device"`
	Logging logger.Config `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Demo    synth.Config  `mapstructure:"demo"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AccessToken    string        `mapstructure:"access_token"` // 为空时不校验
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	device := core.DefaultConfig()
	demo := synth.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.drain_timeout", 10*time.Second)

	v.SetDefault("device.sample_rate", device.SampleRate)
	v.SetDefault("device.encoding", string(device.Encoding))
	v.SetDefault("device.opus_bitrate", device.OpusBitrate)
	v.SetDefault("device.opus_frame_duration", device.OpusFrameDuration)
	v.SetDefault("device.queue_capacity", device.QueueCapacity)
	v.SetDefault("device.queue_overflow", string(device.QueueOverflow))
	v.SetDefault("device.send_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputs", []string{"stdout"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "xiaozhi_sink")

	v.SetDefault("demo.frequency", demo.Frequency)
	v.SetDefault("demo.amplitude", demo.Amplitude)
	v.SetDefault("demo.chunk_duration", demo.ChunkDuration)
	v.SetDefault("demo.word_duration", demo.WordDuration)
	v.SetDefault("demo.realtime", demo.Realtime)
	v.SetDefault("demo.script", []map[string]any{
		{"sender": "human", "text": demo.Script[0].Text},
		{"sender": "bot", "text": demo.Script[1].Text},
	})
}

// loadConfig 加载配置文件, 文件不存在时只使用默认值和环境变量
func loadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("SINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		// 使用命令行指定的路径
		v.SetConfigFile(configPath)
	} else {
		// 默认多路径搜索
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/xiaozhi-sink")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Device.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid device config: %w", err)
	}
	return cfg, nil
}
