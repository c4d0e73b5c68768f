package groove

import (
	"io"

	"github.com/pipelined/signal"
)

// SeekWhence extends io.Seeker's whence values with the two modes the
// codec/IO collaborator needs per spec §6: SIZE (report total size
// without seeking) and FORCE (seek even when the underlying source
// considers it slow, e.g. a network stream).
type SeekWhence int

const (
	SeekStart   SeekWhence = SeekWhence(io.SeekStart)
	SeekCurrent SeekWhence = SeekWhence(io.SeekCurrent)
	SeekEnd     SeekWhence = SeekWhence(io.SeekEnd)
	SeekSize    SeekWhence = 100
	SeekForce   SeekWhence = 101
)

// CustomIO lets a caller supply its own backing storage for a File
// instead of a filesystem path, per spec §4.C "Opening".
type CustomIO struct {
	Read     func(p []byte) (int, error)
	Write    func(p []byte) (int, error)
	Seek     func(offset int64, whence SeekWhence) (int64, error)
	Userdata interface{}
}

// DecodedFrame is one decoder output: frames plus the packet pts that
// produced them (io-layer concept, distinct from Buffer's published
// pts/pos which the decoder loop computes).
type DecodedFrame struct {
	Frames signal.Floating
	Pts    int64 // AV_NOPTS_VALUE-equivalent sentinel is NoPts
}

// NoPts marks a frame whose packet carried no presentation timestamp,
// triggering the decode-clock byte-rate fallback in spec §4.F.
const NoPts int64 = -1 << 63

// Decoder is the inward collaborator named in spec §6: "the pluggable
// codec/filter library used to actually decode and resample" is
// explicitly out of core scope. Production callers supply their own
// Decoder (backed by a real codec library); this package ships exactly
// one reference implementation (internal/wavcodec) so the rest of the
// core is exercisable without a native dependency.
type Decoder interface {
	// Format returns the audio format decoded frames will be delivered
	// in.
	Format() AudioFormat
	// ShortName is the codec's short identifying name (e.g. "pcm_s16le").
	ShortName() string
	// Duration estimates total duration in seconds, when known.
	Duration() float64
	// DecodeFrame reads and decodes the next frame. It returns io.EOF
	// when the underlying source is exhausted.
	DecodeFrame() (DecodedFrame, error)
	// Flush drains any residual frames the codec buffered internally
	// (delayed output). ok is false once nothing more is pending.
	Flush() (frame DecodedFrame, ok bool)
	// Seek flushes internal codec state and repositions to the given
	// stream timestamp.
	Seek(pts int64) error
	// Close releases codec resources. It does not close the underlying
	// io.ReadSeeker.
	Close() error
}

// DecoderFactory opens a Decoder over src. hint is typically a filename
// extension or MIME-ish hint used to pick a codec.
type DecoderFactory func(src io.ReadSeeker, hint string) (Decoder, error)

// defaultDecoderFactory is used when File.Open/OpenCustom is not given an
// explicit factory. It is swappable so callers can register a real codec
// library without forking this package.
var defaultDecoderFactory DecoderFactory

// SetDefaultDecoderFactory installs the DecoderFactory used by File.Open
// and File.OpenCustom when none is passed explicitly. Call this once at
// process startup to wire in a real codec/filter engine.
func SetDefaultDecoderFactory(f DecoderFactory) {
	defaultDecoderFactory = f
}
