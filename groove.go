// Package groove turns a doubly-linked playlist of media files into one or
// more live streams of PCM buffers, each shaped to a consumer's preferred
// audio format and gain.
//
// A Playlist owns a single decoder goroutine that pulls compressed frames
// from Files, pushes them through a rebuildable filter graph (volume or
// soft-compression, optional channel/rate/format conversion, optional
// split), and fans the result out to every attached Sink's bounded queue.
package groove

import "fmt"

// Kind enumerates the error taxonomy used across the package. A zero Kind
// is never returned; ok is always a nil error.
type Kind int

const (
	_ Kind = iota
	KindNoMem
	KindSystemResources
	KindInvalid
	KindSinkNotFound
	KindNoChanges
	KindFileSystem
	KindFileNotFound
	KindPermissions
	KindUnknownFormat
	KindTooManyStreams
	KindStreamNotFound
	KindDecoderNotFound
	KindEncoderNotFound
	KindInvalidSampleFormat
	KindInvalidChannelLayout
	KindEncoding
	KindDecoding
	KindOpeningDevice
	KindDeviceParams
)

func (k Kind) String() string {
	switch k {
	case KindNoMem:
		return "no memory"
	case KindSystemResources:
		return "system resources"
	case KindInvalid:
		return "invalid argument"
	case KindSinkNotFound:
		return "sink not found"
	case KindNoChanges:
		return "no changes"
	case KindFileSystem:
		return "filesystem error"
	case KindFileNotFound:
		return "file not found"
	case KindPermissions:
		return "permission denied"
	case KindUnknownFormat:
		return "unknown format"
	case KindTooManyStreams:
		return "too many streams"
	case KindStreamNotFound:
		return "stream not found"
	case KindDecoderNotFound:
		return "decoder not found"
	case KindEncoderNotFound:
		return "encoder not found"
	case KindInvalidSampleFormat:
		return "invalid sample format"
	case KindInvalidChannelLayout:
		return "invalid channel layout"
	case KindEncoding:
		return "encoding error"
	case KindDecoding:
		return "decoding error"
	case KindOpeningDevice:
		return "error opening device"
	case KindDeviceParams:
		return "invalid device params"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by every public operation in
// this package. It wraps an optional cause and always carries a Kind so
// callers can match on the taxonomy from spec §7 with errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("groove: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("groove: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}
