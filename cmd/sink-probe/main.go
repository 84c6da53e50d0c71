package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lisuiheng/xiaozhi-sink/audio"
	"github.com/lisuiheng/xiaozhi-sink/logger"
	"github.com/lisuiheng/xiaozhi-sink/pkg/interfaces"
	wsconn "github.com/lisuiheng/xiaozhi-sink/protocols/websocket"
	"github.com/lisuiheng/xiaozhi-sink/utils"
)

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/v1/stream", "sinkd stream endpoint")
	token := flag.String("token", "", "Bearer access token")
	deviceID := flag.String("device-id", "", "Device-Id header (random when empty)")
	encoding := flag.String("encoding", "opus", "Audio encoding to request: linear16, wav or opus")
	sampleRate := flag.Int("sample-rate", 16000, "Sample rate to request")
	output := flag.String("o", "probe.wav", "Write received audio to this WAV file, empty to skip")
	attempts := flag.Int("attempts", 5, "Connection attempts, 0 retries forever")
	level := flag.String("log-level", "info", "debug/info/warn/error")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *level, Outputs: []string{"stderr"}}); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if err := run(*serverURL, *token, *deviceID, *encoding, *sampleRate, *output, *attempts); err != nil {
		logger.Error("Probe failed", "error", err)
		os.Exit(1)
	}
}

func run(serverURL, token, deviceID, encoding string, sampleRate int, output string, attempts int) error {
	enc, err := audio.ParseEncoding(encoding)
	if err != nil {
		return err
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	q.Set("encoding", string(enc))
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	u.RawQuery = q.Encode()

	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conn *wsconn.Conn
	backoff := utils.NewExponentialBackoffWith(500*time.Millisecond, 10*time.Second)
	err = utils.Retry(ctx, backoff, attempts, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, err := wsconn.Dial(dialCtx, wsconn.DialConfig{
			URL:             u.String(),
			AccessToken:     token,
			ProtocolVersion: 1,
			DeviceID:        deviceID,
			ClientID:        uuid.NewString(),
		})
		if err != nil {
			logger.Warn("Connection attempt failed", "error", err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("Connected", "url", u.String(), "device_id", deviceID)

	col, err := newCollector(enc, sampleRate, logger.Logger())
	if err != nil {
		return err
	}

	if err := receive(ctx, conn.Receive(), col); err != nil {
		return err
	}

	logger.Info("Stream finished",
		"audio_frames", col.audioFrames,
		"transcripts", len(col.transcripts),
		"seconds", col.duration())

	if output == "" || len(col.samples) == 0 {
		return nil
	}
	data, err := col.wav()
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	logger.Info("Wrote audio", "path", output)
	return nil
}

// receive 处理消息直到服务端关闭连接或ctx结束
func receive(ctx context.Context, msgs <-chan interfaces.Message, col *collector) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if msg.Type != interfaces.MsgText {
				continue
			}
			if err := col.handle(msg.Payload); err != nil {
				return err
			}
		}
	}
}
