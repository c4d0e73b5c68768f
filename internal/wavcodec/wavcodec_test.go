package wavcodec

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV assembles a minimal PCM WAV file: mono s16le at the given
// sample rate, with one sample per frame set to value.
func buildWAV(sampleRate int, value int16, frames int) []byte {
	var buf bytes.Buffer
	dataSize := frames * 2 // 16-bit mono

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	byteRate := sampleRate * 2
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(2)) // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < frames; i++ {
		binary.Write(&buf, binary.LittleEndian, value)
	}
	return buf.Bytes()
}

func TestOpenParsesHeaderAndFormat(t *testing.T) {
	raw := buildWAV(44100, 16384, 100)
	dec, err := Open(bytes.NewReader(raw), ".wav")
	require.NoError(t, err)

	format := dec.Format()
	assert.Equal(t, 44100, format.SampleRate)
	assert.Equal(t, 1, format.Channels())
	assert.InDelta(t, 100.0/44100.0, dec.Duration(), 1e-6)
}

func TestDecodeFrameProducesExpectedSamples(t *testing.T) {
	raw := buildWAV(8000, 16384, 10)
	dec, err := Open(bytes.NewReader(raw), ".wav")
	require.NoError(t, err)

	frame, err := dec.DecodeFrame()
	require.NoError(t, err)
	assert.Equal(t, 10, frame.Frames.Length())
	assert.InDelta(t, 16384.0/32768.0, frame.Frames.Sample(0), 1e-4)

	_, err = dec.DecodeFrame()
	assert.Equal(t, io.EOF, err)
}

func TestSeekRepositionsDataCursor(t *testing.T) {
	raw := buildWAV(8000, 16384, 10)
	dec, err := Open(bytes.NewReader(raw), ".wav")
	require.NoError(t, err)

	require.NoError(t, dec.Seek(5))
	frame, err := dec.DecodeFrame()
	require.NoError(t, err)
	assert.Equal(t, 5, frame.Frames.Length())
}
