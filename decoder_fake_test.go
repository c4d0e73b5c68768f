package groove

import (
	"io"

	"github.com/pipelined/signal"
)

// fakeDecoder is a minimal in-memory Decoder used across the test suite:
// it produces a fixed number of constant-value frames then EOF, with no
// real container to parse. It exists purely to exercise the core without
// a codec dependency in unit tests that don't need the reference WAV
// decoder's file-parsing path.
type fakeDecoder struct {
	format     AudioFormat
	frameSize  int
	totalFrame int
	pos        int
}

func newFakeDecoder(format AudioFormat, totalFrames, frameSize int) *fakeDecoder {
	return &fakeDecoder{format: format, frameSize: frameSize, totalFrame: totalFrames}
}

func (d *fakeDecoder) Format() AudioFormat { return d.format }
func (d *fakeDecoder) ShortName() string   { return "fake" }
func (d *fakeDecoder) Duration() float64 {
	return float64(d.totalFrame) / float64(d.format.SampleRate)
}

func (d *fakeDecoder) DecodeFrame() (DecodedFrame, error) {
	if d.pos >= d.totalFrame {
		return DecodedFrame{}, io.EOF
	}
	n := d.frameSize
	if d.pos+n > d.totalFrame {
		n = d.totalFrame - d.pos
	}
	buf := signal.Allocator{
		Channels: d.format.Channels(),
		Capacity: n,
		Length:   n,
	}.Float64()
	for i := 0; i < buf.Len(); i++ {
		buf.SetSample(i, 0.25)
	}
	pts := int64(d.pos)
	d.pos += n
	return DecodedFrame{Frames: buf, Pts: pts}, nil
}

func (d *fakeDecoder) Flush() (DecodedFrame, bool) { return DecodedFrame{}, false }

func (d *fakeDecoder) Seek(pts int64) error {
	d.pos = int(pts)
	return nil
}

func (d *fakeDecoder) Close() error { return nil }

// newFakeFile builds a *File around a fakeDecoder, bypassing Open/OpenCustom
// so tests don't need a filesystem fixture.
func newFakeFile(format AudioFormat, totalFrames, frameSize int) *File {
	dec := newFakeDecoder(format, totalFrames, frameSize)
	f, _ := openWith(nopReadSeeker{}, nil, "", func(io.ReadSeeker, string) (Decoder, error) {
		return dec, nil
	})
	return f
}

type nopReadSeeker struct{}

func (nopReadSeeker) Read([]byte) (int, error)               { return 0, io.EOF }
func (nopReadSeeker) Seek(int64, int) (int64, error)         { return 0, nil }
