package groove

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 44100

func testFormat() AudioFormat {
	return AudioFormat{SampleRate: testSampleRate, ChannelLayout: LayoutStereo, SampleFormat: SampleFormatF64}
}

func TestPlaylistInsertSetsDecodeHeadWhenEmpty(t *testing.T) {
	p := Create()
	defer p.Destroy()

	f := newFakeFile(testFormat(), 100, 32)
	item := p.Insert(f, 1, 1, nil)

	assert.Same(t, item, p.DecodeHead())
	assert.Same(t, item, p.Head())
	assert.Same(t, item, p.Tail())
}

func TestPlaylistDoublyLinkedInvariants(t *testing.T) {
	p := Create()
	defer p.Destroy()

	var items []*PlaylistItem
	for i := 0; i < 4; i++ {
		items = append(items, p.Insert(newFakeFile(testFormat(), 100, 32), 1, 1, nil))
	}

	assert.Nil(t, p.Head().prev)
	assert.Nil(t, p.Tail().next)
	for i := 1; i < len(items)-1; i++ {
		assert.Same(t, items[i], items[i-1].next)
		assert.Same(t, items[i], items[i+1].prev)
	}
}

func TestPlaylistRemoveAdvancesDecodeHead(t *testing.T) {
	p := Create()
	defer p.Destroy()

	first := p.Insert(newFakeFile(testFormat(), 100, 32), 1, 1, nil)
	second := p.Insert(newFakeFile(testFormat(), 100, 32), 1, 1, nil)

	require.Same(t, first, p.DecodeHead())
	p.Remove(first)
	assert.Same(t, second, p.DecodeHead())
}

func TestPlaylistClearEmptiesList(t *testing.T) {
	p := Create()
	defer p.Destroy()

	p.Insert(newFakeFile(testFormat(), 100, 32), 1, 1, nil)
	p.Insert(newFakeFile(testFormat(), 100, 32), 1, 1, nil)
	p.Clear()

	assert.Nil(t, p.Head())
	assert.Nil(t, p.Tail())
	assert.Equal(t, 0, p.Count())
}

func TestPlaylistPlayPauseIdempotentAndCallsHooksOnce(t *testing.T) {
	p := Create()
	defer p.Destroy()

	var playCalls, pauseCalls int
	s := NewSink(SinkConfig{
		Play:  func() { playCalls++ },
		Pause: func() { pauseCalls++ },
	})
	s.SetOnlyFormat(testFormat())
	require.NoError(t, p.AttachSink(s))

	assert.True(t, p.IsPlaying())
	p.Play() // already playing: no hook call
	assert.Equal(t, 0, playCalls)

	p.Pause()
	p.Pause() // already paused: second call is a no-op
	assert.False(t, p.IsPlaying())
	assert.Equal(t, 1, pauseCalls)

	p.Play()
	assert.True(t, p.IsPlaying())
	assert.Equal(t, 1, playCalls)
}

func TestAttachDetachSinkRoundTrip(t *testing.T) {
	p := Create()
	defer p.Destroy()

	s := NewSink(SinkConfig{})
	s.SetOnlyFormat(testFormat())

	require.NoError(t, p.AttachSink(s))
	assert.Same(t, p, s.playlist)

	require.NoError(t, p.DetachSink(s))
	assert.Nil(t, s.playlist)
	assert.Equal(t, 0, s.queue.Len())
}

func TestDetachUnknownSinkIsSinkNotFound(t *testing.T) {
	p := Create()
	defer p.Destroy()

	s := NewSink(SinkConfig{})
	s.SetOnlyFormat(testFormat())

	err := p.DetachSink(s)
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindSinkNotFound, gerr.Kind)
}

func TestTrivialPlaythroughDeliversEndOfPlaylistLast(t *testing.T) {
	p := Create()
	defer p.Destroy()

	s := NewSink(SinkConfig{})
	s.SetOnlyFormat(testFormat())
	require.NoError(t, p.AttachSink(s))

	p.Insert(newFakeFile(testFormat(), 128, 32), 1, 1, nil)

	var gotEnd bool
	deadline := time.After(2 * time.Second)
	for i := 0; i < 100 && !gotEnd; i++ {
		buf, status := s.BufferGet(true)
		switch status {
		case BufferYes:
			buf.Unref()
		case BufferEnd:
			gotEnd = true
		case BufferNo:
			select {
			case <-deadline:
				t.Fatal("timed out waiting for end-of-playlist sentinel")
			default:
			}
		}
	}
	assert.True(t, gotEnd, "sink should observe the end-of-playlist sentinel after the only item drains")
}

func TestDetachingSinkAbortsBlockedBufferGet(t *testing.T) {
	p := Create()
	defer p.Destroy()

	s := NewSink(SinkConfig{})
	s.SetOnlyFormat(testFormat())
	require.NoError(t, p.AttachSink(s))

	done := make(chan BufferStatus, 1)
	go func() {
		_, status := s.BufferGet(true)
		done <- status
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.DetachSink(s))

	select {
	case status := <-done:
		assert.Equal(t, BufferNo, status)
	case <-time.After(time.Second):
		t.Fatal("BufferGet never returned after detach")
	}
}
