package groove

// SampleFormat enumerates the sample encodings a buffer can carry.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS24
	SampleFormatS32
	SampleFormatF32
	SampleFormatF64
)

// BytesPerSample returns the storage size of a single sample in this
// format. S24 samples are stored in 4-byte containers (the common
// native-endian convention), matching the source library's s24ne layout.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8:
		return 1
	case SampleFormatS16:
		return 2
	case SampleFormatS24, SampleFormatS32, SampleFormatF32:
		return 4
	case SampleFormatF64:
		return 8
	default:
		return 0
	}
}

// ChannelID identifies a single loudspeaker position within a channel
// layout, ordered the way the layout lists them.
type ChannelID int

const (
	ChannelFrontLeft ChannelID = iota
	ChannelFrontRight
	ChannelFrontCenter
	ChannelLowFrequency
	ChannelBackLeft
	ChannelBackRight
	ChannelSideLeft
	ChannelSideRight
)

// ChannelLayout is an ordered list of channel positions.
type ChannelLayout []ChannelID

// Count returns the number of channels in the layout.
func (l ChannelLayout) Count() int { return len(l) }

// Equal reports whether two layouts name the same channels in the same
// order.
func (l ChannelLayout) Equal(o ChannelLayout) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}

// LayoutMono, LayoutStereo and friends are the common layouts; a layout
// derived purely from a channel count (when a file's container omits an
// explicit layout) falls back to one of these or to a generic set of
// "front" channels for unusual counts.
var (
	LayoutMono   = ChannelLayout{ChannelFrontCenter}
	LayoutStereo = ChannelLayout{ChannelFrontLeft, ChannelFrontRight}
	Layout51     = ChannelLayout{ChannelFrontLeft, ChannelFrontRight, ChannelFrontCenter, ChannelLowFrequency, ChannelBackLeft, ChannelBackRight}
)

// LayoutFromChannelCount derives a layout when no explicit one is known,
// per spec §4.C "falling back to a layout derived from channel count".
func LayoutFromChannelCount(n int) ChannelLayout {
	switch n {
	case 1:
		return LayoutMono
	case 2:
		return LayoutStereo
	case 6:
		return Layout51
	default:
		layout := make(ChannelLayout, n)
		for i := range layout {
			layout[i] = ChannelID(i)
		}
		return layout
	}
}

// AudioFormat is a value type describing the shape of PCM data flowing
// through the core. Two formats are Equal iff all four fields match.
type AudioFormat struct {
	SampleRate    int
	ChannelLayout ChannelLayout
	SampleFormat  SampleFormat
	IsPlanar      bool
}

// Equal reports whether f and o describe the same audio shape.
func (f AudioFormat) Equal(o AudioFormat) bool {
	return f.SampleRate == o.SampleRate &&
		f.SampleFormat == o.SampleFormat &&
		f.IsPlanar == o.IsPlanar &&
		f.ChannelLayout.Equal(o.ChannelLayout)
}

// Channels returns the channel count implied by the layout.
func (f AudioFormat) Channels() int { return f.ChannelLayout.Count() }

// BytesPerFrame returns the size in bytes of one interleaved frame (one
// sample per channel) in this format. Used by the decoder's pts-gap
// fallback to advance a file's decode clock from produced byte counts.
func (f AudioFormat) BytesPerFrame() int {
	return f.SampleFormat.BytesPerSample() * f.Channels()
}

// BytesPerSecond returns the byte rate implied by this format.
func (f AudioFormat) BytesPerSecond() int {
	return f.BytesPerFrame() * f.SampleRate
}
