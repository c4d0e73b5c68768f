package groove

import (
	"sync/atomic"

	"github.com/pipelined/signal"
)

// Buffer is an immutable, reference-counted chunk of audio produced by the
// decoder. It holds either decoded frames (Frames != nil) or an opaque
// encoded packet (Packet != nil, FrameCount == 0). Construction is an
// internal concern of the decoder loop and the encoded-packet writer;
// consumers only ever Ref/Unref a *Buffer handed to them by a Sink.
type Buffer struct {
	Format     AudioFormat
	Frames     signal.Floating // decoded frames, planar or interleaved
	Packet     []byte          // opaque encoded bytes, when Frames == nil
	FrameCount int
	Size       int     // total byte size of the payload
	Pts        int64   // monotonic presentation timestamp
	Pos        float64 // decode position in seconds inside the owning item
	Item       *PlaylistItem

	refs int32
}

// newBuffer constructs a buffer with an initial reference count of one,
// owned by the caller (conventionally the decoder loop's own traversal
// reference, per spec §4.F).
func newBuffer(format AudioFormat, frames signal.Floating, item *PlaylistItem, pts int64, pos float64) *Buffer {
	size := 0
	frameCount := 0
	if frames != nil {
		frameCount = frames.Length()
		size = frameCount * format.BytesPerFrame()
	}
	return &Buffer{
		Format:     format,
		Frames:     frames,
		FrameCount: frameCount,
		Size:       size,
		Pts:        pts,
		Pos:        pos,
		Item:       item,
		refs:       1,
	}
}

// newPacketBuffer constructs an encoded-packet buffer (frame count 0, as
// required by spec §3 "Buffer").
func newPacketBuffer(format AudioFormat, packet []byte, item *PlaylistItem, pts int64, pos float64) *Buffer {
	return &Buffer{
		Format: format,
		Packet: packet,
		Size:   len(packet),
		Pts:    pts,
		Pos:    pos,
		Item:   item,
		refs:   1,
	}
}

// Ref increments the reference count. The decoder calls it once per sink
// that enqueues this buffer; its own traversal reference is the initial
// count set by newBuffer, per spec §4.F.
func (b *Buffer) Ref() {
	atomic.AddInt32(&b.refs, 1)
}

// Unref decrements the reference count, releasing the underlying payload
// when it reaches zero. Calling Unref on an already-released buffer is a
// programmer error and is not guarded against, matching the source
// library's contract.
func (b *Buffer) Unref() {
	if atomic.AddInt32(&b.refs, -1) == 0 {
		b.Frames = nil
		b.Packet = nil
	}
}

// queueItem is what actually travels through a Queue: either a real
// buffer or the end-of-playlist marker. Modeling it as a tagged union
// (design note §9) replaces the source library's process-global sentinel
// pointer with a per-item flag; no buffer is ever reference-counted as a
// sentinel.
type queueItem struct {
	buffer      *Buffer
	endOfAsPlay bool
}

func bufferItem(b *Buffer) queueItem   { return queueItem{buffer: b} }
func endOfPlaylistItem() queueItem     { return queueItem{endOfAsPlay: true} }
func (q queueItem) isEnd() bool        { return q.endOfAsPlay }
func (q queueItem) unwrap() *Buffer    { return q.buffer }
