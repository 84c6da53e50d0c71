package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
	"github.com/lisuiheng/xiaozhi-sink/audio"
	"github.com/lisuiheng/xiaozhi-sink/core"
	"github.com/lisuiheng/xiaozhi-sink/pkg/transcript"
	"github.com/lisuiheng/xiaozhi-sink/protocols/frame"
	"github.com/lisuiheng/xiaozhi-sink/synth"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	demo := synth.DefaultConfig()
	demo.ChunkDuration = 100 * time.Millisecond
	demo.WordDuration = 100 * time.Millisecond
	demo.Script = []synth.Line{
		{Sender: transcript.SenderHuman, Text: "hello"},
		{Sender: transcript.SenderBot, Text: "hi there"},
	}
	device := core.DefaultConfig()
	device.SendTimeout = time.Second
	return Config{
		Server:  ServerConfig{DrainTimeout: 5 * time.Second},
		Device:  device,
		Metrics: MetricsConfig{Enabled: true, Namespace: "test"},
		Demo:    demo,
	}
}

func startServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	srv := NewServer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return ts
}

// readStream reads frames until the server closes the connection.
func readStream(t *testing.T, url string) ([]any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, _, err := cws.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.CloseNow()
	c.SetReadLimit(1 << 20)

	var msgs []any
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return msgs, err
		}
		require.Equal(t, cws.MessageText, typ)
		msg, err := frame.Parse(data)
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream" + query
}

func TestStreamDeliversAudioThenTranscripts(t *testing.T) {
	ts := startServer(t, testConfig())

	msgs, err := readStream(t, wsURL(ts, "?encoding=linear16&sample_rate=8000"))
	require.Equal(t, cws.StatusNormalClosure, cws.CloseStatus(err))

	require.Len(t, msgs, 4)
	human, ok := msgs[0].(frame.TranscriptMessage)
	require.True(t, ok)
	require.Equal(t, "hello", human.Text)
	require.Equal(t, "human", human.Sender)

	for _, m := range msgs[1:3] {
		a, ok := m.(frame.AudioMessage)
		require.True(t, ok, "bot audio precedes its transcript")
		data, err := a.Bytes()
		require.NoError(t, err)
		require.Equal(t, 800, audio.SampleCount(data))
	}

	bot, ok := msgs[3].(frame.TranscriptMessage)
	require.True(t, ok)
	require.Equal(t, "hi there", bot.Text)
	require.Equal(t, "bot", bot.Sender)
	require.NotZero(t, bot.Timestamp)
}

func TestStreamOpusAudioDecodes(t *testing.T) {
	ts := startServer(t, testConfig())

	msgs, err := readStream(t, wsURL(ts, ""))
	require.Equal(t, cws.StatusNormalClosure, cws.CloseStatus(err))

	dec, err := audio.NewDecoder(audio.EncoderConfig{Encoding: audio.EncodingOpus, SampleRate: 16000})
	require.NoError(t, err)

	var audioFrames int
	for _, m := range msgs {
		a, ok := m.(frame.AudioMessage)
		if !ok {
			continue
		}
		audioFrames++
		data, err := a.Bytes()
		require.NoError(t, err)
		pcm, err := dec.Decode(data)
		require.NoError(t, err)
		require.Equal(t, 1600, audio.SampleCount(pcm))
	}
	require.Equal(t, 2, audioFrames)
}

func TestStreamRejectsBadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AccessToken = "secret"
	ts := startServer(t, cfg)

	res, err := http.Get(ts.URL + "/v1/stream")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/stream?encoding=mp3", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestMetricsEndpointReportsFrames(t *testing.T) {
	ts := startServer(t, testConfig())

	_, err := readStream(t, wsURL(ts, "?encoding=wav"))
	require.Equal(t, cws.StatusNormalClosure, cws.CloseStatus(err))

	res, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `test_frames_sent_total{type="audio"} 2`)
	require.Contains(t, string(body), `test_frames_sent_total{type="transcript"} 2`)
}

func TestHealthz(t *testing.T) {
	ts := startServer(t, testConfig())
	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"https://app.example.com"}
	srv := NewServer(cfg, slog.Default())

	for origin, want := range map[string]bool{
		"":                        true,
		"https://app.example.com": true,
		"http://sink.local":       true,
		"https://evil.example":    false,
	} {
		r := httptest.NewRequest(http.MethodGet, "http://sink.local/v1/stream", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		require.Equal(t, want, srv.checkOrigin(r), origin)
	}
}

func TestTranscriptWireFormat(t *testing.T) {
	ts := startServer(t, testConfig())
	msgs, _ := readStream(t, wsURL(ts, "?encoding=linear16"))
	require.NotEmpty(t, msgs)

	raw, err := json.Marshal(msgs[0])
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Equal(t, "transcript", fields["type"])
	require.Contains(t, fields, "text")
	require.Contains(t, fields, "sender")
	require.Contains(t, fields, "timestamp")
}
