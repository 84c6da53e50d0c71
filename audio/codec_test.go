package audio

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineWave(sampleRate, samples int, frequency float64) []byte {
	data := make([]int16, samples)
	for i := range data {
		phase := frequency * float64(i) / float64(sampleRate)
		data[i] = int16(math.Sin(2*math.Pi*phase) * 12000)
	}
	return Int16ToBytes(data)
}

func rms(pcm []byte) float64 {
	samples := BytesToInt16(pcm)
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func TestParseEncoding(t *testing.T) {
	for input, expected := range map[string]Encoding{
		"linear16": EncodingLinear16,
		"PCM16":    EncodingLinear16,
		" wav ":    EncodingWAV,
		"opus":     EncodingOpus,
	} {
		enc, err := ParseEncoding(input)
		require.NoError(t, err, input)
		require.Equal(t, expected, enc, input)
	}

	_, err := ParseEncoding("mp3")
	require.Error(t, err)
}

func TestEncodersRoundTrip(t *testing.T) {
	for _, c := range []struct {
		name       string
		encoding   Encoding
		sampleRate int
		samples    int
		lossless   bool
	}{
		{"linear16", EncodingLinear16, 8000, 800, true},
		{"wav", EncodingWAV, 16000, 1234, true},
		{"opus 8k", EncodingOpus, 8000, 800, false},
		{"opus 16k partial frame", EncodingOpus, 16000, 1000, false},
		{"opus 48k", EncodingOpus, 48000, 4800, false},
	} {
		t.Run(c.name, func(t *testing.T) {
			cfg := EncoderConfig{Encoding: c.encoding, SampleRate: c.sampleRate}
			enc, err := NewEncoder(cfg)
			require.NoError(t, err)
			require.Equal(t, c.encoding, enc.Encoding())
			require.Equal(t, c.sampleRate, enc.SampleRate())
			dec, err := NewDecoder(cfg)
			require.NoError(t, err)

			pcm := sineWave(c.sampleRate, c.samples, 440)
			encoded, err := enc.Encode(pcm)
			require.NoError(t, err)
			require.NotEmpty(t, encoded)

			decoded, err := dec.Decode(encoded)
			require.NoError(t, err)
			require.Equal(t, c.samples, SampleCount(decoded), "decoded duration")

			if c.lossless {
				require.Equal(t, pcm, decoded)
				return
			}
			ratio := rms(decoded) / rms(pcm)
			require.Greater(t, ratio, 0.25, "decoded signal energy")
			require.Less(t, ratio, 2.0, "decoded signal energy")
		})
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	for _, encoding := range []Encoding{EncodingLinear16, EncodingWAV, EncodingOpus} {
		enc, err := NewEncoder(EncoderConfig{Encoding: encoding, SampleRate: 16000})
		require.NoError(t, err)

		for _, pcm := range [][]byte{nil, {}, {0x01, 0x02, 0x03}} {
			_, err := enc.Encode(pcm)
			require.Error(t, err, "%s: %v", encoding, pcm)
			require.True(t, errors.Is(err, ErrEncoding), "errors.Is(err, ErrEncoding)")

			var encErr *EncodingError
			require.True(t, errors.As(err, &encErr))
			require.Equal(t, encoding, encErr.Encoding)
		}
	}
}

func TestOpusEncoderIsStatelessPerCall(t *testing.T) {
	enc, err := NewOpusEncoder(8000, 0, 0)
	require.NoError(t, err)

	pcm := sineWave(8000, 800, 300)
	first, err := enc.Encode(pcm)
	require.NoError(t, err)
	_, err = enc.Encode(sineWave(8000, 480, 900))
	require.NoError(t, err)
	again, err := enc.Encode(pcm)
	require.NoError(t, err)

	require.Equal(t, first, again, "same input must produce the same packet stream")
}

func TestNewOpusEncoderValidation(t *testing.T) {
	_, err := NewOpusEncoder(44100, 0, 0)
	require.Error(t, err, "unsupported sample rate")

	_, err = NewOpusEncoder(16000, 0, 25)
	require.Error(t, err, "unsupported frame duration")

	enc, err := NewOpusEncoder(16000, 32000, 40)
	require.NoError(t, err)
	require.Equal(t, 640, enc.FrameSamples())
}

func TestOpusDecoderRejectsGarbage(t *testing.T) {
	dec, err := NewOpusDecoder()
	require.NoError(t, err)

	_, err = dec.Decode([]byte("not an opus stream"))
	require.ErrorIs(t, err, errOpusStreamCorrupt)
}

func TestNewEncoderInvalidSampleRate(t *testing.T) {
	_, err := NewEncoder(EncoderConfig{Encoding: EncodingWAV, SampleRate: 0})
	require.Error(t, err)
}
