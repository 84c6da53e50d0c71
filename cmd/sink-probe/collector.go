package main

import (
	"fmt"
	"log/slog"

	goaudio "github.com/go-audio/audio"
	"github.com/lisuiheng/xiaozhi-sink/audio"
	"github.com/lisuiheng/xiaozhi-sink/protocols/frame"
)

// collector 解析下行消息, 解码音频并累积采样
type collector struct {
	decoder     audio.Decoder
	sampleRate  int
	samples     []int
	audioFrames int
	transcripts []frame.TranscriptMessage
	logger      *slog.Logger
}

func newCollector(enc audio.Encoding, sampleRate int, log *slog.Logger) (*collector, error) {
	dec, err := audio.NewDecoder(audio.EncoderConfig{Encoding: enc, SampleRate: sampleRate})
	if err != nil {
		return nil, err
	}
	return &collector{decoder: dec, sampleRate: sampleRate, logger: log}, nil
}

func (c *collector) handle(raw []byte) error {
	msg, err := frame.Parse(raw)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case frame.AudioMessage:
		data, err := m.Bytes()
		if err != nil {
			return fmt.Errorf("decode base64 payload: %w", err)
		}
		pcm, err := c.decoder.Decode(data)
		if err != nil {
			return fmt.Errorf("decode audio frame %d: %w", c.audioFrames, err)
		}
		for _, s := range audio.BytesToInt16(pcm) {
			c.samples = append(c.samples, int(s))
		}
		c.audioFrames++
		c.logger.Debug("Audio frame", "bytes", len(data), "samples", audio.SampleCount(pcm))
	case frame.TranscriptMessage:
		c.transcripts = append(c.transcripts, m)
		c.logger.Info("Transcript", "sender", m.Sender, "text", m.Text)
	}
	return nil
}

func (c *collector) duration() float64 {
	return float64(len(c.samples)) / float64(c.sampleRate)
}

// wav 把收到的全部音频写成一个WAV文件
func (c *collector) wav() ([]byte, error) {
	return audio.EncodeWAV(&goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: c.sampleRate, NumChannels: audio.Channels},
		Data:           c.samples,
		SourceBitDepth: 16,
	})
}
