package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lisuiheng/xiaozhi-sink/audio"
	"github.com/lisuiheng/xiaozhi-sink/pkg/transcript"
	"github.com/lisuiheng/xiaozhi-sink/queue"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
device:
  sample_rate: 8000
  encoding: wav
  queue_capacity: 64
  queue_overflow: drop_oldest
  send_timeout: 2s
logging:
  level: debug
  format: json
demo:
  chunk_duration: 40ms
  script:
    - sender: bot
      text: testing one two
`), 0644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, 8000, cfg.Device.SampleRate)
	require.Equal(t, audio.EncodingWAV, cfg.Device.Encoding)
	require.Equal(t, 64, cfg.Device.QueueCapacity)
	require.Equal(t, queue.OverflowDropOldest, cfg.Device.QueueOverflow)
	require.Equal(t, 2*time.Second, cfg.Device.SendTimeout)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, 40*time.Millisecond, cfg.Demo.ChunkDuration)
	require.Len(t, cfg.Demo.Script, 1)
	require.Equal(t, transcript.SenderBot, cfg.Demo.Script[0].Sender)

	// defaults fill what the file leaves out
	require.Equal(t, 10*time.Second, cfg.Server.DrainTimeout)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  encoding: opus\n"), 0644))
	t.Setenv("SINK_DEVICE_ENCODING", "linear16")
	t.Setenv("SINK_SERVER_ADDR", ":7000")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, audio.EncodingLinear16, cfg.Device.Encoding)
	require.Equal(t, ":7000", cfg.Server.Addr)
}

func TestLoadConfigRejectsInvalidDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  encoding: opus\n  sample_rate: 44100\n"), 0644))

	_, err := loadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
