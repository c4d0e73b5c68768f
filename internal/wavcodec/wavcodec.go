// Package wavcodec is a minimal PCM WAV decoder used as the groove core's
// reference Decoder implementation. It exists so the playlist/filter
// graph core is exercisable end to end without a native codec library;
// production use is expected to supply its own groove.Decoder backed by
// a real engine (opus, flac, mp3, libav...) the way spec §6 treats the
// codec/filter engine as a pluggable collaborator.
package wavcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/groove-audio/groove"
	"github.com/pipelined/signal"
)

const blockFrames = 1024

type riffHeader struct {
	sampleRate    uint32
	numChannels   uint16
	bitsPerSample uint16
	dataOffset    int64
	dataSize      uint32
}

type decoder struct {
	src    io.ReadSeeker
	hdr    riffHeader
	format groove.AudioFormat
	pos    int64 // byte offset into data chunk
}

// Open parses a WAV container from src and returns a groove.Decoder over
// its PCM data. hint is accepted for DecoderFactory-signature
// compatibility but otherwise unused: WAV is detected by header magic,
// not by extension.
func Open(src io.ReadSeeker, hint string) (groove.Decoder, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wavcodec: seek to start: %w", err)
	}
	hdr, err := readHeader(src)
	if err != nil {
		return nil, err
	}
	sf := sampleFormatFor(hdr.bitsPerSample)
	if sf == groove.SampleFormatUnknown {
		return nil, fmt.Errorf("wavcodec: unsupported bit depth %d", hdr.bitsPerSample)
	}
	d := &decoder{
		src: src,
		hdr: hdr,
		format: groove.AudioFormat{
			SampleRate:    int(hdr.sampleRate),
			ChannelLayout: groove.LayoutFromChannelCount(int(hdr.numChannels)),
			SampleFormat:  sf,
			IsPlanar:      false,
		},
	}
	if _, err := src.Seek(hdr.dataOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wavcodec: seek to data: %w", err)
	}
	return d, nil
}

func sampleFormatFor(bits uint16) groove.SampleFormat {
	switch bits {
	case 8:
		return groove.SampleFormatU8
	case 16:
		return groove.SampleFormatS16
	case 24:
		return groove.SampleFormatS24
	case 32:
		return groove.SampleFormatS32
	default:
		return groove.SampleFormatUnknown
	}
}

func readHeader(src io.ReadSeeker) (riffHeader, error) {
	var hdr riffHeader
	var magic [4]byte
	if _, err := io.ReadFull(src, magic[:]); err != nil || string(magic[:]) != "RIFF" {
		return hdr, errors.New("wavcodec: not a RIFF stream")
	}
	var sz uint32
	binary.Read(src, binary.LittleEndian, &sz)
	if _, err := io.ReadFull(src, magic[:]); err != nil || string(magic[:]) != "WAVE" {
		return hdr, errors.New("wavcodec: not a WAVE stream")
	}
	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(src, chunkID[:]); err != nil {
			return hdr, errors.New("wavcodec: missing fmt/data chunks")
		}
		var chunkSize uint32
		if err := binary.Read(src, binary.LittleEndian, &chunkSize); err != nil {
			return hdr, err
		}
		name := strings.TrimRight(string(chunkID[:]), " ")
		switch name {
		case "fmt":
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(src, body); err != nil {
				return hdr, err
			}
			hdr.numChannels = binary.LittleEndian.Uint16(body[2:4])
			hdr.sampleRate = binary.LittleEndian.Uint32(body[4:8])
			hdr.bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			cur, err := src.Seek(0, io.SeekCurrent)
			if err != nil {
				return hdr, err
			}
			hdr.dataOffset = cur
			hdr.dataSize = chunkSize
			return hdr, nil
		default:
			if _, err := src.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return hdr, err
			}
		}
	}
}

func (d *decoder) Format() groove.AudioFormat { return d.format }
func (d *decoder) ShortName() string          { return "pcm_wav" }

func (d *decoder) Duration() float64 {
	bps := d.format.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(d.hdr.dataSize) / float64(bps)
}

func (d *decoder) DecodeFrame() (groove.DecodedFrame, error) {
	remaining := int64(d.hdr.dataSize) - d.pos
	if remaining <= 0 {
		return groove.DecodedFrame{}, io.EOF
	}
	bytesPerFrame := int64(d.format.BytesPerFrame())
	frames := int64(blockFrames)
	if frames*bytesPerFrame > remaining {
		frames = remaining / bytesPerFrame
	}
	if frames == 0 {
		return groove.DecodedFrame{}, io.EOF
	}
	buf := make([]byte, frames*bytesPerFrame)
	n, err := io.ReadFull(d.src, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return groove.DecodedFrame{}, err
	}
	frames = int64(n) / bytesPerFrame
	out := signal.Allocator{
		Channels: d.format.Channels(),
		Capacity: int(frames),
		Length:   int(frames),
	}.Float64()
	fillFloat64(out, buf[:frames*bytesPerFrame], d.format)
	pts := d.pos / bytesPerFrame
	d.pos += frames * bytesPerFrame
	return groove.DecodedFrame{Frames: out, Pts: pts}, nil
}

// fillFloat64 decodes raw little-endian PCM bytes into a pre-allocated
// signal.Floating buffer, sample by sample. This sidesteps any
// byte-layout assumptions about signal.Signed and keeps the reference
// codec self-contained.
func fillFloat64(out signal.Floating, raw []byte, format groove.AudioFormat) {
	channels := format.Channels()
	bps := format.SampleFormat.BytesPerSample()
	frames := len(raw) / (bps * channels)
	idx := 0
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			off := (f*channels + c) * bps
			var v float64
			switch format.SampleFormat {
			case groove.SampleFormatU8:
				v = (float64(raw[off]) - 128) / 128
			case groove.SampleFormatS16:
				s := int16(binary.LittleEndian.Uint16(raw[off : off+2]))
				v = float64(s) / 32768
			case groove.SampleFormatS24:
				s := int32(raw[off]) | int32(raw[off+1])<<8 | int32(raw[off+2])<<16
				if s&0x800000 != 0 {
					s |= -1 << 24
				}
				v = float64(s) / 8388608
			case groove.SampleFormatS32:
				s := int32(binary.LittleEndian.Uint32(raw[off : off+4]))
				v = float64(s) / 2147483648
			}
			out.SetSample(idx, v)
			idx++
		}
	}
}

func (d *decoder) Flush() (groove.DecodedFrame, bool) {
	return groove.DecodedFrame{}, false
}

func (d *decoder) Seek(pts int64) error {
	bytesPerFrame := int64(d.format.BytesPerFrame())
	offset := pts * bytesPerFrame
	if offset < 0 {
		offset = 0
	}
	if offset > int64(d.hdr.dataSize) {
		offset = int64(d.hdr.dataSize)
	}
	if _, err := d.src.Seek(d.hdr.dataOffset+offset, io.SeekStart); err != nil {
		return err
	}
	d.pos = offset
	return nil
}

func (d *decoder) Close() error { return nil }
