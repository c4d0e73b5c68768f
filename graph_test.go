package groove

import (
	"testing"

	"github.com/pipelined/signal"
	"github.com/stretchr/testify/assert"
)

func mono(values ...float64) signal.Floating {
	buf := signal.Allocator{Channels: 1, Capacity: len(values), Length: len(values)}.Float64()
	for i, v := range values {
		buf.SetSample(i, v)
	}
	return buf
}

func TestVolumedScalesEverySample(t *testing.T) {
	in := mono(0.1, 0.2, -0.4)
	out := volumed(in, 0.5)
	assert.InDelta(t, 0.05, out.Sample(0), 1e-9)
	assert.InDelta(t, 0.1, out.Sample(1), 1e-9)
	assert.InDelta(t, -0.2, out.Sample(2), 1e-9)
}

func TestCompandedNeverExceedsUnity(t *testing.T) {
	in := mono(0.9, 1.0, -0.95)
	out := companded(in, 2.0, DefaultCompand)
	for i := 0; i < out.Len(); i++ {
		assert.LessOrEqual(t, out.Sample(i), 1.0)
		assert.GreaterOrEqual(t, out.Sample(i), -1.0)
	}
}

func TestBuildGraphPicksCompandAboveUnityGain(t *testing.T) {
	m := newSinkMap()
	s := stereoS16(0)
	m.attach(s)

	item := &PlaylistItem{gain: 2.0, peak: 1.0}
	g := buildGraph(testFormat(), 1.0, item, m.snapshot())
	assert.True(t, g.useCompand)

	item2 := &PlaylistItem{gain: 0.5, peak: 1.0}
	g2 := buildGraph(testFormat(), 1.0, item2, m.snapshot())
	assert.False(t, g2.useCompand)
}

func TestBuildGraphMarksAformatWhenInputDiffersFromGroup(t *testing.T) {
	m := newSinkMap()
	s := monoF32(0)
	m.attach(s)

	g := buildGraph(testFormat(), 1.0, &PlaylistItem{gain: 1, peak: 1}, m.snapshot())
	assert.Len(t, g.branches, 1)
	assert.True(t, g.branches[0].needsAformat, "stereo f64 input must be reformatted for a mono f32 sink")
}

func TestTwoHeterogeneousSinksProduceSplitGraph(t *testing.T) {
	m := newSinkMap()
	a := stereoS16(0)
	b := monoF32(0)
	m.attach(a)
	m.attach(b)

	g := buildGraph(testFormat(), 1.0, &PlaylistItem{gain: 1, peak: 1}, m.snapshot())
	assert.Len(t, g.branches, 2, "two incompatible groups produce two output branches (asplit)")
}

func TestResampleChangesFrameCountProportionally(t *testing.T) {
	in := signal.Allocator{Channels: 1, Capacity: 44100, Length: 44100}.Float64()
	for i := 0; i < in.Len(); i++ {
		in.SetSample(i, 0.1)
	}
	out := resample(in, 44100, 48000)
	assert.InDelta(t, 48000, out.Length(), 2)
}
