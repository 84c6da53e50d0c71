package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hraban/opus"
)

const (
	// DefaultOpusBitrate 默认码率
	DefaultOpusBitrate = 24000
	// DefaultOpusFrameDuration 默认帧时长(毫秒)
	DefaultOpusFrameDuration = 20

	opusMaxPacketSize = 4000 // OPUS最大包大小
	opusMaxFrameSize  = 5760 // OPUS最大帧大小(48kHz下120ms)
)

// opusStreamMagic OPUS包流的文件头标识
var opusStreamMagic = [4]byte{'O', 'P', 'S', '1'}

var errOpusStreamCorrupt = errors.New("corrupt opus packet stream")

// opusStreamHeader 包流头部, 大端序
type opusStreamHeader struct {
	Magic        [4]byte
	SampleRate   uint32
	SampleCount  uint32
	FrameSamples uint16
}

// IsOpusSampleRate OPUS只支持这几种采样率
func IsOpusSampleRate(sampleRate int) bool {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

// OpusEncoder OPUS音频编码器
//
// 每次Encode都使用新的编码器状态, 输出的包流可以独立解码.
type OpusEncoder struct {
	sampleRate    int
	bitrate       int
	frameDuration int
}

// NewOpusEncoder 创建新的OPUS编码器
func NewOpusEncoder(sampleRate, bitrate, frameDuration int) (*OpusEncoder, error) {
	if !IsOpusSampleRate(sampleRate) {
		return nil, fmt.Errorf("unsupported opus sample rate: %d", sampleRate)
	}
	if bitrate <= 0 {
		bitrate = DefaultOpusBitrate
	}
	if frameDuration == 0 {
		frameDuration = DefaultOpusFrameDuration
	}
	switch frameDuration {
	case 10, 20, 40, 60:
	default:
		return nil, fmt.Errorf("unsupported opus frame duration: %dms", frameDuration)
	}

	// 提前验证参数能被libopus接受
	if _, err := newOpusEncoder(sampleRate, bitrate); err != nil {
		return nil, err
	}

	return &OpusEncoder{
		sampleRate:    sampleRate,
		bitrate:       bitrate,
		frameDuration: frameDuration,
	}, nil
}

func newOpusEncoder(sampleRate, bitrate int) (*opus.Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("failed to set bitrate: %w", err)
	}
	return enc, nil
}

// FrameSamples 每个OPUS帧的采样数
func (e *OpusEncoder) FrameSamples() int {
	return e.sampleRate * e.frameDuration / 1000
}

// Encode 编码PCM音频数据, 最后一帧不足时补静音
func (e *OpusEncoder) Encode(pcm []byte) ([]byte, error) {
	if err := ValidatePCM(pcm); err != nil {
		return nil, encodingError(EncodingOpus, "invalid input", err)
	}

	enc, err := newOpusEncoder(e.sampleRate, e.bitrate)
	if err != nil {
		return nil, encodingError(EncodingOpus, "init encoder", err)
	}

	samples := BytesToInt16(pcm)
	frameSamples := e.FrameSamples()

	var out bytes.Buffer
	header := opusStreamHeader{
		Magic:        opusStreamMagic,
		SampleRate:   uint32(e.sampleRate),
		SampleCount:  uint32(len(samples)),
		FrameSamples: uint16(frameSamples),
	}
	if err := binary.Write(&out, binary.BigEndian, header); err != nil {
		return nil, encodingError(EncodingOpus, "write header", err)
	}

	frame := make([]int16, frameSamples)
	packet := make([]byte, opusMaxPacketSize)
	for offset := 0; offset < len(samples); offset += frameSamples {
		n := copy(frame, samples[offset:])
		clear(frame[n:])

		size, err := enc.Encode(frame, packet)
		if err != nil {
			return nil, encodingError(EncodingOpus, "opus encode failed", err)
		}

		_ = binary.Write(&out, binary.BigEndian, uint16(size))
		out.Write(packet[:size])
	}

	return out.Bytes(), nil
}

func (e *OpusEncoder) Encoding() Encoding { return EncodingOpus }

func (e *OpusEncoder) SampleRate() int { return e.sampleRate }

// OpusDecoder OPUS包流解码器
type OpusDecoder struct{}

// NewOpusDecoder 创建新的OPUS解码器
func NewOpusDecoder() (*OpusDecoder, error) {
	return &OpusDecoder{}, nil
}

// Decode 解码OPUS包流, 返回PCM16小端数据
func (d *OpusDecoder) Decode(data []byte) ([]byte, error) {
	r := bytes.NewReader(data)

	var header opusStreamHeader
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", errOpusStreamCorrupt, err)
	}
	if header.Magic != opusStreamMagic {
		return nil, fmt.Errorf("%w: bad magic %q", errOpusStreamCorrupt, header.Magic[:])
	}

	dec, err := opus.NewDecoder(int(header.SampleRate), Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	samples := make([]int16, 0, int(header.SampleCount)+int(header.FrameSamples))
	pcm := make([]int16, opusMaxFrameSize*Channels)
	for {
		var size uint16
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read packet size: %v", errOpusStreamCorrupt, err)
		}

		packet := make([]byte, size)
		if _, err := io.ReadFull(r, packet); err != nil {
			return nil, fmt.Errorf("%w: read packet: %v", errOpusStreamCorrupt, err)
		}

		n, err := dec.Decode(packet, pcm)
		if err != nil {
			return nil, fmt.Errorf("opus decode failed: %w", err)
		}
		samples = append(samples, pcm[:n*Channels]...)
	}

	if len(samples) < int(header.SampleCount) {
		return nil, fmt.Errorf("%w: decoded %d samples, header says %d", errOpusStreamCorrupt, len(samples), header.SampleCount)
	}
	return Int16ToBytes(samples[:header.SampleCount]), nil
}
