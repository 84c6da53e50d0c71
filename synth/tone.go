// synth/tone.go
package synth

import (
	"fmt"
	"math"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/lisuiheng/xiaozhi-sink/audio"
)

// Tone 生成连续相位的正弦波PCM16单声道数据
type Tone struct {
	SampleRate int
	Frequency  float64
	Amplitude  float64 // 0..1
	position   int
}

// NewTone 创建正弦波生成器
func NewTone(sampleRate int, frequency, amplitude float64) (*Tone, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if frequency <= 0 || frequency >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("frequency %.1f out of range for sample rate %d", frequency, sampleRate)
	}
	if amplitude <= 0 || amplitude > 1 {
		return nil, fmt.Errorf("amplitude must be in (0, 1], got %.2f", amplitude)
	}
	return &Tone{SampleRate: sampleRate, Frequency: frequency, Amplitude: amplitude}, nil
}

// Buffer 生成下一段duration长度的采样, 相位与上一段衔接
func (t *Tone) Buffer(duration time.Duration) *goaudio.IntBuffer {
	data := make([]int, samplesFor(t.SampleRate, duration))
	for i := range data {
		phase := t.Frequency * float64(t.position+i) / float64(t.SampleRate)
		data[i] = int(math.Sin(2*math.Pi*phase) * 32767 * t.Amplitude)
	}
	t.position += len(data)

	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: t.SampleRate, NumChannels: audio.Channels},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// Chunk 生成下一段PCM16小端字节
func (t *Tone) Chunk(duration time.Duration) []byte {
	return PCM(t.Buffer(duration))
}

// PCM 把IntBuffer转换为PCM16小端字节
func PCM(buf *goaudio.IntBuffer) []byte {
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(max(math.MinInt16, min(math.MaxInt16, v)))
	}
	return audio.Int16ToBytes(samples)
}

func samplesFor(sampleRate int, d time.Duration) int {
	return int(math.Ceil(float64(d) * float64(sampleRate) / float64(time.Second)))
}
