package groove

import (
	"testing"

	"github.com/pipelined/signal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBufferRefcount(t *testing.T) {
	frames := signal.Allocator{Channels: 2, Capacity: 4, Length: 4}.Float64()
	b := newBuffer(AudioFormat{SampleRate: 44100, ChannelLayout: LayoutStereo, SampleFormat: SampleFormatF64}, frames, nil, 0, 0)

	b.Ref()
	b.Ref()
	assert.EqualValues(t, 3, b.refs)

	b.Unref()
	b.Unref()
	assert.EqualValues(t, 1, b.refs)
	assert.NotNil(t, b.Frames)

	b.Unref()
	assert.EqualValues(t, 0, b.refs)
	assert.Nil(t, b.Frames)
}

func TestEndOfPlaylistSentinelIsNotABuffer(t *testing.T) {
	end := endOfPlaylistItem()
	assert.True(t, end.isEnd())
	assert.Nil(t, end.unwrap())

	b := newBuffer(AudioFormat{}, nil, nil, 0, 0)
	item := bufferItem(b)
	assert.False(t, item.isEnd())
	assert.Same(t, b, item.unwrap())
}

// TestBufferRefcountNeverObservedZeroBetweenRefUnref is the property from
// spec §8 invariant 1: refcount >= 1 between creation and the final
// unref, for arbitrary interleavings of Ref/Unref pairs.
func TestBufferRefcountNeverObservedZeroBetweenRefUnref(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := newBuffer(AudioFormat{}, nil, nil, 0, 0)
		extraRefs := rapid.IntRange(0, 20).Draw(t, "extraRefs")
		for i := 0; i < extraRefs; i++ {
			b.Ref()
		}
		for i := 0; i < extraRefs; i++ {
			b.Unref()
			assert.GreaterOrEqual(t, int(b.refs), 1)
		}
		b.Unref()
		assert.EqualValues(t, 0, b.refs)
	})
}
