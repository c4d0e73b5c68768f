package groove

import (
	"fmt"
	"math"

	"github.com/pipelined/signal"
)

// CompandParams are the soft-limiter's fixed dynamics parameters, kept as
// a policy value rather than a hard requirement per spec §9(b).
type CompandParams struct {
	Attack, Decay float64
	Points        string
	Knee, Delay   float64
}

// DefaultCompand matches the values the source library hard-codes.
var DefaultCompand = CompandParams{
	Attack: 0.1,
	Decay:  0.2,
	Points: "-2/-2",
	Knee:   0.02,
	Delay:  0.2,
}

// branch is one output tap of the filter graph: a group's example sink,
// its per-group gain, and whether its input needs an aformat conversion
// to satisfy the example's declared format.
type branch struct {
	group        *sinkGroup
	gain         float64
	needsAformat bool
}

// graphKey captures everything a rebuild decision depends on, per
// spec §4.E: "whenever any of {input sample_rate, channel layout, sample
// format, time-base, playlist gain × item gain × item peak, per-sink
// gain} differ from the last-built values".
type graphKey struct {
	input        AudioFormat
	combinedGain float64
	perGroup     string // serialized per-group (example identity, gain)
}

func buildKey(input AudioFormat, playlistGain float64, item *PlaylistItem, groups []*sinkGroup) graphKey {
	itemGain, itemPeak := 1.0, 1.0
	if item != nil {
		itemGain, itemPeak = item.gain, item.peak
	}
	combined := playlistGain * itemGain * math.Min(1, itemPeak)
	perGroup := ""
	for _, g := range groups {
		perGroup += fmt.Sprintf("|%p:%g", g.example, g.example.gain)
	}
	return graphKey{input: input, combinedGain: combined, perGroup: perGroup}
}

// filterGraph is the rebuildable chain described in spec §4.E:
//
//	[abuffer] -> [volume OR compand] -> [asplit if >1 group]
//	          -> for each group: [volume] -> [aformat if needed] -> [abuffersink]
type filterGraph struct {
	key          graphKey
	useCompand   bool
	combinedGain float64
	branches     []branch
}

// buildGraph computes a new filterGraph value for the given input shape,
// playlist gain, current decode-head item, and sink groups. It never
// mutates playlist/sink state; the caller decides when to swap it in,
// per design note §9 "treat the graph as a value ... atomically swap".
func buildGraph(input AudioFormat, playlistGain float64, item *PlaylistItem, groups []*sinkGroup) *filterGraph {
	key := buildKey(input, playlistGain, item, groups)
	g := &filterGraph{
		key:          key,
		combinedGain: key.combinedGain,
		useCompand:   key.combinedGain > 1.0,
	}
	for _, grp := range groups {
		example := grp.example
		exampleFormat := exampleFormatOf(example)
		g.branches = append(g.branches, branch{
			group:        grp,
			gain:         example.gain,
			needsAformat: !input.Equal(exampleFormat),
		})
	}
	return g
}

// needsRebuild reports whether key differs from the graph's own, per the
// triggers listed in spec §4.E. graphKey embeds AudioFormat, which in turn
// embeds a ChannelLayout slice, so it is compared field-by-field rather
// than with !=  (a struct holding a slice is not comparable in Go).
func (g *filterGraph) needsRebuild(key graphKey) bool {
	if g == nil {
		return true
	}
	return !g.key.input.Equal(key.input) ||
		g.key.combinedGain != key.combinedGain ||
		g.key.perGroup != key.perGroup
}

// apply runs one decoded frame through the graph, returning one output
// buffer per group (already gain-adjusted and format-converted). The
// decoder loop wraps each returned buffer as a groove.Buffer and enqueues
// it to every sink in that group.
func (g *filterGraph) apply(in signal.Floating) map[*sinkGroup]signal.Floating {
	var shaped signal.Floating
	if g.useCompand {
		shaped = companded(in, g.combinedGain, DefaultCompand)
	} else {
		shaped = volumed(in, g.combinedGain)
	}

	out := make(map[*sinkGroup]signal.Floating, len(g.branches))
	for _, br := range g.branches {
		b := volumed(shaped, br.gain)
		if br.needsAformat {
			exampleFormat := exampleFormatOf(br.group.example)
			b = aformat(b, g.key.input, exampleFormat)
		}
		out[br.group] = b
	}
	return out
}

func exampleFormatOf(s *Sink) AudioFormat {
	return s.format
}

// volumed scales every sample by gain into a freshly allocated buffer of
// the same shape as in.
func volumed(in signal.Floating, gain float64) signal.Floating {
	out := signal.Allocator{
		Channels: in.Channels(),
		Capacity: in.Length(),
		Length:   in.Length(),
	}.Float64()
	for i := 0; i < in.Len(); i++ {
		out.SetSample(i, in.Sample(i)*gain)
	}
	return out
}

// companded applies a soft-knee limiter in place of linear gain when the
// combined gain exceeds unity, protecting against clipping at the cost
// of a fixed dynamic-range curve (spec §4.E). The exact libavfilter
// compand algorithm is the codec/filter engine's concern (out of core
// scope per spec §1); this approximates its effect with a tanh soft
// clip shaped by the same knee parameter.
func companded(in signal.Floating, gain float64, params CompandParams) signal.Floating {
	out := signal.Allocator{
		Channels: in.Channels(),
		Capacity: in.Length(),
		Length:   in.Length(),
	}.Float64()
	knee := params.Knee
	if knee <= 0 {
		knee = 0.02
	}
	for i := 0; i < in.Len(); i++ {
		s := in.Sample(i) * gain
		if math.Abs(s) > 1-knee {
			sign := 1.0
			if s < 0 {
				sign = -1.0
			}
			s = sign * (1 - knee + knee*math.Tanh((math.Abs(s)-(1-knee))/knee))
		}
		out.SetSample(i, s)
	}
	return out
}

// aformat converts in from inFmt's shape to outFmt's shape: sample rate
// (linear resampling), channel layout (downmix by averaging into the last
// channel, upmix by duplicating the last channel), planar bit, and
// sample format range are all encoded purely in the float64 domain here;
// the decoder reinterprets the result according to outFmt when wrapping
// it as a Buffer.
func aformat(in signal.Floating, inFmt, outFmt AudioFormat) signal.Floating {
	remixed := remixChannels(in, inFmt.Channels(), outFmt.Channels())
	if inFmt.SampleRate == outFmt.SampleRate {
		return remixed
	}
	return resample(remixed, inFmt.SampleRate, outFmt.SampleRate)
}

func remixChannels(in signal.Floating, fromCh, toCh int) signal.Floating {
	if fromCh == toCh {
		return in
	}
	frames := in.Len() / fromCh
	out := signal.Allocator{
		Channels: toCh,
		Capacity: frames,
		Length:   frames,
	}.Float64()
	for f := 0; f < frames; f++ {
		if toCh < fromCh {
			// downmix: average the extra source channels into the last
			// destination channel.
			for c := 0; c < toCh-1; c++ {
				out.SetSample(f*toCh+c, in.Sample(f*fromCh+c))
			}
			sum := 0.0
			extra := fromCh - (toCh - 1)
			for c := toCh - 1; c < fromCh; c++ {
				sum += in.Sample(f*fromCh + c)
			}
			out.SetSample(f*toCh+toCh-1, sum/float64(extra))
		} else {
			// upmix: duplicate the last source channel into the extra
			// destination channels.
			for c := 0; c < fromCh; c++ {
				out.SetSample(f*toCh+c, in.Sample(f*fromCh+c))
			}
			last := in.Sample(f*fromCh + fromCh - 1)
			for c := fromCh; c < toCh; c++ {
				out.SetSample(f*toCh+c, last)
			}
		}
	}
	return out
}

func resample(in signal.Floating, fromRate, toRate int) signal.Floating {
	channels := in.Channels()
	fromFrames := in.Len() / channels
	toFrames := int(float64(fromFrames) * float64(toRate) / float64(fromRate))
	out := signal.Allocator{
		Channels: channels,
		Capacity: toFrames,
		Length:   toFrames,
	}.Float64()
	ratio := float64(fromRate) / float64(toRate)
	for f := 0; f < toFrames; f++ {
		srcPos := float64(f) * ratio
		i0 := int(srcPos)
		frac := srcPos - float64(i0)
		i1 := i0 + 1
		if i1 >= fromFrames {
			i1 = fromFrames - 1
		}
		if i0 >= fromFrames {
			i0 = fromFrames - 1
		}
		for c := 0; c < channels; c++ {
			a := in.Sample(i0*channels + c)
			b := in.Sample(i1*channels + c)
			out.SetSample(f*channels+c, a+(b-a)*frac)
		}
	}
	return out
}
