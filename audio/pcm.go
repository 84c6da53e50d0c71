package audio

import (
	"encoding/binary"
	"fmt"
)

// ValidatePCM 检查PCM16数据是否非空并按采样对齐
func ValidatePCM(pcm []byte) error {
	if len(pcm) == 0 {
		return fmt.Errorf("empty pcm buffer")
	}
	if len(pcm)%SampleWidth != 0 {
		return fmt.Errorf("pcm length %d is not a multiple of %d", len(pcm), SampleWidth)
	}
	return nil
}

// BytesToInt16 小端PCM字节转换为采样
func BytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/SampleWidth)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*SampleWidth:]))
	}
	return samples
}

// Int16ToBytes 采样转换为小端PCM字节
func Int16ToBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*SampleWidth)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*SampleWidth:], uint16(s))
	}
	return pcm
}

// SampleCount 返回PCM16单声道数据的采样数
func SampleCount(pcm []byte) int {
	return len(pcm) / SampleWidth
}

type linear16Codec struct {
	sampleRate int
}

func (c *linear16Codec) Encode(pcm []byte) ([]byte, error) {
	if err := ValidatePCM(pcm); err != nil {
		return nil, encodingError(EncodingLinear16, "invalid input", err)
	}
	out := make([]byte, len(pcm))
	copy(out, pcm)
	return out, nil
}

func (c *linear16Codec) Decode(data []byte) ([]byte, error) {
	if len(data)%SampleWidth != 0 {
		return nil, fmt.Errorf("linear16 payload length %d is not sample aligned", len(data))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *linear16Codec) Encoding() Encoding { return EncodingLinear16 }

func (c *linear16Codec) SampleRate() int { return c.sampleRate }
