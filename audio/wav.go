package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// WAVEncoder 将PCM16数据封装成完整的WAV文件
type WAVEncoder struct {
	sampleRate int
}

// NewWAVEncoder 创建WAV编码器
func NewWAVEncoder(sampleRate int) *WAVEncoder {
	return &WAVEncoder{sampleRate: sampleRate}
}

func (e *WAVEncoder) Encode(pcm []byte) ([]byte, error) {
	if err := ValidatePCM(pcm); err != nil {
		return nil, encodingError(EncodingWAV, "invalid input", err)
	}

	samples := BytesToInt16(pcm)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	b, err := EncodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{SampleRate: e.sampleRate, NumChannels: Channels},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return nil, encodingError(EncodingWAV, "write wav", err)
	}
	return b, nil
}

func (e *WAVEncoder) Encoding() Encoding { return EncodingWAV }

func (e *WAVEncoder) SampleRate() int { return e.sampleRate }

// EncodeWAV 将整数采样缓冲写入内存中的WAV文件
func EncodeWAV(buf *audio.IntBuffer) ([]byte, error) {
	wavFile := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(wavFile, buf.Format.SampleRate, 16, buf.Format.NumChannels, 1)

	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}

	b, err := io.ReadAll(wavFile.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading wav into memory: %w", err)
	}
	return b, nil
}

// WAVDecoder 从WAV文件中读取PCM16数据
type WAVDecoder struct{}

func (d *WAVDecoder) Decode(data []byte) ([]byte, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, fmt.Errorf("read wave file headers: %w", err)
	}
	if decoder.SampleBitDepth() != 16 {
		return nil, fmt.Errorf("wave data with unsupported bit depth of %d provided, expected 16", decoder.SampleBitDepth())
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read full pcm buffer: %w", err)
	}

	samples := make([]int16, len(buffer.Data))
	for i, s := range buffer.Data {
		samples[i] = int16(s)
	}
	return Int16ToBytes(samples), nil
}
