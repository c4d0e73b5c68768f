package groove

import (
	"sync"

	"github.com/charmbracelet/log"
)

// PlaylistItem is a node in a Playlist's doubly linked list, binding an
// opened File to a per-item gain and true-peak amplitude, per spec §3.
type PlaylistItem struct {
	file *File
	gain float64
	peak float64

	prev, next *PlaylistItem
	owner      *Playlist
}

// File returns the item's backing File.
func (it *PlaylistItem) File() *File { return it.file }

// Gain returns the item's own gain multiplier.
func (it *PlaylistItem) Gain() float64 { return it.gain }

// Peak returns the item's known true-peak amplitude.
func (it *PlaylistItem) Peak() float64 { return it.peak }

// Next and Prev expose the linked-list neighbors. Both are safe to read
// concurrently with playlist mutation only while holding no assumption
// about their continued validity; callers that need a stable view should
// snapshot under Playlist.Count-style enumeration instead of holding
// these across control calls.
func (it *PlaylistItem) Next() *PlaylistItem { return it.next }
func (it *PlaylistItem) Prev() *PlaylistItem { return it.prev }

// FillMode selects when the decoder treats its sinks as backpressuring,
// per spec §4.F.
type FillMode int

const (
	// FillAnySinkFull stops decoding as soon as any sink is full;
	// resumes only once every sink has room. This is the default.
	FillAnySinkFull FillMode = iota
	// FillEverySinkFull keeps decoding until every sink is full; slow
	// sinks may fall behind and buffer deeply.
	FillEverySinkFull
)

// Playlist is a doubly linked, ordered list of PlaylistItems decoded by a
// single background goroutine and fanned out to attached Sinks, per
// spec §2/§3/§4.F.
//
// Locking follows the strict order from spec §5: mu (decode_head_mutex)
// is acquired before any File.seekMu, which is acquired before drainMu,
// which is acquired before any sink queue mutex, which is acquired
// before a Buffer's own refcount operations (those are lock-free atomics
// here, the leaf of the order).
type Playlist struct {
	mu           sync.Mutex
	cond         *sync.Cond // paired with mu; decode_head_cond
	head, tail   *PlaylistItem
	decodeHead   *PlaylistItem
	gain         float64
	paused       bool
	fillMode     FillMode
	sinks        *sinkMap
	rebuildGraph bool
	sentEndOfQ   bool

	drainMu   sync.Mutex
	drainCond *sync.Cond

	quit        bool
	decoderDone chan struct{}

	log *log.Logger
}

// Create starts a playlist and its decoder goroutine.
func Create() *Playlist {
	p := &Playlist{
		gain:        1.0,
		sinks:       newSinkMap(),
		decoderDone: make(chan struct{}),
		log:         log.With("component", "playlist"),
	}
	p.cond = sync.NewCond(&p.mu)
	p.drainCond = sync.NewCond(&p.drainMu)
	go p.decodeLoop()
	return p
}

// Destroy stops the decoder goroutine and waits for it to exit. It does
// not close any Files or destroy any Sinks; those outlive the playlist
// per spec §3 "Lifecycles".
func (p *Playlist) Destroy() {
	p.mu.Lock()
	p.quit = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.drainCond.Broadcast()
	<-p.decoderDone
}

// Insert links a new item before next (or at the tail if next is nil).
// If the playlist was empty, the new item's file is armed to seek to 0
// and becomes the decode head immediately, per spec §8 "Inserting into
// an empty playlist immediately decodes from t=0".
func (p *Playlist) Insert(file *File, gain, peak float64, next *PlaylistItem) *PlaylistItem {
	item := &PlaylistItem{file: file, gain: gain, peak: peak, owner: p}

	p.mu.Lock()
	defer p.mu.Unlock()

	wasEmpty := p.head == nil
	if next == nil {
		if p.tail != nil {
			p.tail.next = item
			item.prev = p.tail
		} else {
			p.head = item
		}
		p.tail = item
	} else {
		item.next = next
		item.prev = next.prev
		if next.prev != nil {
			next.prev.next = item
		} else {
			p.head = item
		}
		next.prev = item
	}

	if wasEmpty {
		file.requestSeek(0, false)
		p.decodeHead = item
		p.cond.Signal()
	}
	return item
}

// Remove unlinks item. If item is the current decode head, decoding
// advances to item.next. Every sink's queue is purged of buffers
// referring to item before Remove returns, per spec §4.H.
func (p *Playlist) Remove(item *PlaylistItem) {
	p.mu.Lock()
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		p.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		p.tail = item.prev
	}
	if p.decodeHead == item {
		p.decodeHead = item.next
		if p.decodeHead != nil {
			p.decodeHead.file.requestSeek(0, false)
		}
	}
	p.mu.Unlock()

	p.sinks.forEach(func(s *Sink) {
		s.purgeItem(item)
	})

	p.drainCond.Broadcast()
	item.prev, item.next, item.owner = nil, nil, nil
}

// Clear removes every item from the playlist.
func (p *Playlist) Clear() {
	for {
		p.mu.Lock()
		head := p.head
		p.mu.Unlock()
		if head == nil {
			return
		}
		p.Remove(head)
	}
}

// Count returns the number of items currently in the playlist.
func (p *Playlist) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for it := p.head; it != nil; it = it.next {
		n++
	}
	return n
}

// Head and Tail return the first/last item, or nil if empty.
func (p *Playlist) Head() *PlaylistItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

func (p *Playlist) Tail() *PlaylistItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tail
}

// DecodeHead returns the item currently being decoded, or nil.
func (p *Playlist) DecodeHead() *PlaylistItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decodeHead
}

// Seek repositions decoding to item at the given offset in seconds,
// flushing every sink queue before any buffer past the seek point is
// enqueued (spec §8 S5).
func (p *Playlist) Seek(item *PlaylistItem, seconds float64) {
	item.file.requestSeek(seconds, true)
	p.mu.Lock()
	p.decodeHead = item
	p.mu.Unlock()
	p.cond.Signal()
}

// Position returns the current decode head's decode clock, in seconds,
// or 0 if the playlist is empty.
func (p *Playlist) Position() float64 {
	p.mu.Lock()
	head := p.decodeHead
	p.mu.Unlock()
	if head == nil {
		return 0
	}
	return head.file.Position()
}

// Play resumes decoding and calls every sink's Play hook if the playlist
// was actually paused.
func (p *Playlist) Play() {
	p.mu.Lock()
	changed := p.paused
	p.paused = false
	p.mu.Unlock()
	if changed {
		p.sinks.forEach(func(s *Sink) {
			if s.onPlay != nil {
				s.onPlay()
			}
		})
		p.cond.Signal()
	}
}

// Pause suspends decoding and calls every sink's Pause hook if the
// playlist was actually playing.
func (p *Playlist) Pause() {
	p.mu.Lock()
	changed := !p.paused
	p.paused = true
	p.mu.Unlock()
	if changed {
		p.sinks.forEach(func(s *Sink) {
			if s.onPause != nil {
				s.onPause()
			}
		})
	}
}

// IsPlaying reports whether the playlist is not paused.
func (p *Playlist) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.paused
}

// SetGain updates the playlist-wide gain multiplier.
func (p *Playlist) SetGain(gain float64) {
	p.mu.Lock()
	p.gain = gain
	p.mu.Unlock()
}

// SetItemGainPeak updates a single item's gain and peak.
func (p *Playlist) SetItemGainPeak(item *PlaylistItem, gain, peak float64) {
	p.mu.Lock()
	item.gain = gain
	item.peak = peak
	p.mu.Unlock()
}

// SetFillMode swaps the backpressure policy.
func (p *Playlist) SetFillMode(mode FillMode) {
	p.mu.Lock()
	p.fillMode = mode
	p.mu.Unlock()
	p.drainCond.Broadcast()
}

// AttachSink places sink into the sink map (joining or creating a
// group), resets its queue, and signals the drain condition so the
// decoder reconsiders backpressure, per spec §4.H.
func (p *Playlist) AttachSink(sink *Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sink.playlist != nil {
		return newError("AttachSink", KindInvalid, nil)
	}
	sink.queue.Reset()
	rebuilt := p.sinks.attach(sink)
	sink.playlist = p
	if rebuilt {
		p.rebuildGraph = true
	}
	p.drainCond.Broadcast()
	return nil
}

// DetachSink aborts the sink's queue (unblocking any consumer), flushes
// it, and removes it from the sink map. The queue stays aborted until the
// sink is attached again.
func (p *Playlist) DetachSink(sink *Sink) error {
	p.mu.Lock()
	ok := p.sinks.detach(sink)
	if ok {
		p.rebuildGraph = true
	}
	p.mu.Unlock()
	if !ok {
		return newError("DetachSink", KindSinkNotFound, nil)
	}
	sink.queue.Abort()
	sink.queue.Flush()
	sink.playlist = nil
	return nil
}
