package groove

import (
	"sync"
	"sync/atomic"
)

// RateRange is an inclusive range of acceptable sample rates.
type RateRange struct {
	Min, Max int
}

func (r RateRange) contains(rate int) bool { return rate >= r.Min && rate <= r.Max }

// BufferStatus is the three-valued outcome of Sink.BufferGet/BufferPeek.
type BufferStatus int

const (
	BufferNo BufferStatus = iota
	BufferYes
	BufferEnd
)

// SinkConfig describes everything a consumer must declare when creating
// a Sink: the formats it accepts and its optional lifecycle callbacks,
// per spec §3 "Sink".
type SinkConfig struct {
	SampleRates     []RateRange
	ChannelLayouts  []ChannelLayout
	SampleFormats   []SampleFormat
	BlockSize       int // required frame-block size; 0 = any
	PlanarOK        bool
	InterleavedOK   bool
	Gain            float64
	BufferSizeBytes int

	BufferFilled func(*Buffer)
	Flush        func()
	Purge        func()
	Pause        func()
	Play         func()
}

// Sink is a consumer-owned description of acceptable output formats plus
// a bounded buffer queue, per spec §3/§4.G.
type Sink struct {
	sampleRates    []RateRange
	channelLayouts []ChannelLayout
	sampleFormats  []SampleFormat
	blockSize      int
	planarOK       bool
	interleavedOK  bool
	gain           float64

	onBufferFilled func(*Buffer)
	onFlush        func()
	onPurge        func()
	onPause        func()
	onPlay         func()

	playlist *Playlist
	queue    *Queue

	bytesQueued    int64
	capacityBytes  int64
	hasEndSentinel atomic.Bool

	// format is the group output format this sink was negotiated into,
	// snapshotted by sinkMap.attach. Per the open question in spec §9(c),
	// it is not changed while the sink stays attached. For a group's
	// example it is the format that group's branch outputs; a later swap
	// of the group's example does not update the other members' copies.
	format AudioFormat
}

// NewSink constructs a detached Sink from cfg. Both PlanarOK and
// InterleavedOK unset is treated as both accepted, per spec §6 flags.
func NewSink(cfg SinkConfig) *Sink {
	planarOK, interleavedOK := cfg.PlanarOK, cfg.InterleavedOK
	if !planarOK && !interleavedOK {
		planarOK, interleavedOK = true, true
	}
	gain := cfg.Gain
	if gain == 0 {
		gain = 1.0
	}
	s := &Sink{
		sampleRates:    cfg.SampleRates,
		channelLayouts: cfg.ChannelLayouts,
		sampleFormats:  cfg.SampleFormats,
		blockSize:      cfg.BlockSize,
		planarOK:       planarOK,
		interleavedOK:  interleavedOK,
		gain:           gain,
		onBufferFilled: cfg.BufferFilled,
		onFlush:        cfg.Flush,
		onPurge:        cfg.Purge,
		onPause:        cfg.Pause,
		onPlay:         cfg.Play,
		capacityBytes:  int64(cfg.BufferSizeBytes),
	}
	s.queue = NewQueue()
	s.queue.OnPut(func(it queueItem) {
		if it.isEnd() {
			s.hasEndSentinel.Store(true)
			return
		}
		atomic.AddInt64(&s.bytesQueued, int64(it.unwrap().Size))
	})
	s.queue.OnGet(func(it queueItem) {
		if it.isEnd() {
			s.hasEndSentinel.Store(false)
			return
		}
		newSize := atomic.AddInt64(&s.bytesQueued, -int64(it.unwrap().Size))
		if newSize < atomic.LoadInt64(&s.capacityBytes) && s.playlist != nil {
			s.playlist.drainCond.Broadcast()
		}
	})
	// Flush and Purge drop items through onCleanup rather than onGet (spec
	// §4.B), so the byte/sentinel accounting that onGet would otherwise
	// have done must also happen here, or a flushed-but-not-"gotten" sink
	// would look permanently full to detectFullSinks.
	s.queue.OnCleanup(func(it queueItem) {
		if it.isEnd() {
			s.hasEndSentinel.Store(false)
			return
		}
		b := it.unwrap()
		newSize := atomic.AddInt64(&s.bytesQueued, -int64(b.Size))
		if newSize < atomic.LoadInt64(&s.capacityBytes) && s.playlist != nil {
			s.playlist.drainCond.Broadcast()
		}
		b.Unref()
	})
	return s
}

// SetOnlyFormat restricts the sink to accept exactly one format. Per the
// open question in spec §9(c), calling this after the sink has already
// been attached has no effect on the current attachment.
func (s *Sink) SetOnlyFormat(f AudioFormat) {
	s.sampleRates = []RateRange{{f.SampleRate, f.SampleRate}}
	s.channelLayouts = []ChannelLayout{f.ChannelLayout}
	s.sampleFormats = []SampleFormat{f.SampleFormat}
	if f.IsPlanar {
		s.planarOK, s.interleavedOK = true, false
	} else {
		s.planarOK, s.interleavedOK = false, true
	}
}

// acceptsRate reports whether rate falls inside one of s's allowed
// ranges.
func (s *Sink) acceptsRate(rate int) bool {
	for _, r := range s.sampleRates {
		if r.contains(rate) {
			return true
		}
	}
	return false
}

func (s *Sink) acceptsSampleFormat(f SampleFormat) bool {
	for _, sf := range s.sampleFormats {
		if sf == f {
			return true
		}
	}
	return false
}

func (s *Sink) acceptsLayout(l ChannelLayout) bool {
	for _, cl := range s.channelLayouts {
		if cl.Equal(l) {
			return true
		}
	}
	return false
}

// accepts reports whether s would accept format example's shape, per the
// negotiation rule in spec §4.D "Accepted means...".
func (s *Sink) accepts(example *Sink) bool {
	if example.blockSize != 0 && s.blockSize != 0 && example.blockSize != s.blockSize {
		return false
	}
	if example.gain != s.gain {
		return false
	}
	for _, r := range example.sampleRates {
		if !s.acceptsRate(r.Min) || !s.acceptsRate(r.Max) {
			return false
		}
	}
	for _, sf := range example.sampleFormats {
		if !s.acceptsSampleFormat(sf) {
			return false
		}
	}
	for _, cl := range example.channelLayouts {
		if !s.acceptsLayout(cl) {
			return false
		}
	}
	if example.planarOK && !s.planarOK {
		return false
	}
	if example.interleavedOK && !s.interleavedOK {
		return false
	}
	return true
}

// BufferGet pops the next buffer. Returns BufferEnd (with a nil buffer)
// iff the popped item is the end-of-playlist sentinel, and BufferNo if
// aborted (detach in flight) or, for block=false, empty.
func (s *Sink) BufferGet(block bool) (*Buffer, BufferStatus) {
	it, res := s.queue.Get(block)
	if res != GetOK {
		return nil, BufferNo
	}
	if it.isEnd() {
		return nil, BufferEnd
	}
	return it.unwrap(), BufferYes
}

// BufferPeek behaves like BufferGet without consuming the item.
func (s *Sink) BufferPeek(block bool) (*Buffer, BufferStatus) {
	it, res := s.queue.Peek(block)
	if res != GetOK {
		return nil, BufferNo
	}
	if it.isEnd() {
		return nil, BufferEnd
	}
	return it.unwrap(), BufferYes
}

// SetGain changes the sink's gain. Because group membership depends on
// an exact gain match (spec §4.D), this detaches and re-attaches the
// sink so the sink map can re-evaluate which group it belongs to.
func (s *Sink) SetGain(g float64) error {
	p := s.playlist
	s.gain = g
	if p == nil {
		return nil
	}
	if err := p.DetachSink(s); err != nil {
		return err
	}
	return p.AttachSink(s)
}

// SetBufferSizeBytes updates the queue's byte capacity. If the new
// capacity admits more than the current fill level, the drain condition
// is signalled so a stalled decoder reconsiders.
func (s *Sink) SetBufferSizeBytes(n int) {
	atomic.StoreInt64(&s.capacityBytes, int64(n))
	if atomic.LoadInt64(&s.bytesQueued) < int64(n) && s.playlist != nil {
		s.playlist.drainCond.Broadcast()
	}
}

// GetFillLevel returns the current number of bytes queued.
func (s *Sink) GetFillLevel() int64 {
	return atomic.LoadInt64(&s.bytesQueued)
}

// ContainsEndOfPlaylist reports whether the end-of-playlist sentinel is
// currently queued.
func (s *Sink) ContainsEndOfPlaylist() bool {
	return s.hasEndSentinel.Load()
}

// isFull reports whether the sink has reached its byte capacity.
func (s *Sink) isFull() bool {
	cap := atomic.LoadInt64(&s.capacityBytes)
	if cap <= 0 {
		return false
	}
	return atomic.LoadInt64(&s.bytesQueued) >= cap
}

// purgeItem drops every queued buffer belonging to item, per spec §4.G
// "on_purge returns true iff buffer.item == playlist.purge_item", then
// runs the sink's Purge callback.
func (s *Sink) purgeItem(item *PlaylistItem) {
	s.queue.OnPurge(func(it queueItem) bool {
		if it.isEnd() {
			return false
		}
		return it.unwrap().Item == item
	})
	s.queue.Purge()
	if s.onPurge != nil {
		s.onPurge()
	}
}

// sinkGroup is a set of sinks sharing one filter-graph output branch
// because they all accept one common format, per spec §3 "SinkMap".
type sinkGroup struct {
	example *Sink
	stack   []*Sink
}

// sinkMap partitions attached sinks into format-compatible groups.
type sinkMap struct {
	mu     sync.Mutex
	groups []*sinkGroup
}

func newSinkMap() *sinkMap { return &sinkMap{} }

// attach implements the negotiation rule from spec §4.D, returning
// whether the filter graph needs a rebuild.
func (m *sinkMap) attach(s *Sink) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if s.accepts(g.example) {
			g.stack = append(g.stack, s)
			s.format = AudioFormat{
				SampleRate:    g.example.sampleRates[0].Min,
				ChannelLayout: g.example.channelLayouts[0],
				SampleFormat:  g.example.sampleFormats[0],
				IsPlanar:      g.example.planarOK && !g.example.interleavedOK,
			}
			return false
		}
		if g.example.accepts(s) {
			g.example = s
			g.stack = append(g.stack, s)
			s.format = AudioFormat{
				SampleRate:    s.sampleRates[0].Min,
				ChannelLayout: s.channelLayouts[0],
				SampleFormat:  s.sampleFormats[0],
				IsPlanar:      s.planarOK && !s.interleavedOK,
			}
			return true
		}
	}
	m.groups = append(m.groups, &sinkGroup{example: s, stack: []*Sink{s}})
	s.format = AudioFormat{
		SampleRate:    s.sampleRates[0].Min,
		ChannelLayout: s.channelLayouts[0],
		SampleFormat:  s.sampleFormats[0],
		IsPlanar:      s.planarOK && !s.interleavedOK,
	}
	return true
}

// detach removes s from its group, deleting the group if it becomes
// empty. Returns whether s was found.
func (m *sinkMap) detach(s *Sink) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for gi, g := range m.groups {
		for si, candidate := range g.stack {
			if candidate != s {
				continue
			}
			g.stack = append(g.stack[:si], g.stack[si+1:]...)
			if len(g.stack) == 0 {
				m.groups = append(m.groups[:gi], m.groups[gi+1:]...)
			} else if g.example == s {
				g.example = g.stack[0]
			}
			return true
		}
	}
	return false
}

// forEach calls fn once per attached sink, across every group.
func (m *sinkMap) forEach(fn func(*Sink)) {
	m.mu.Lock()
	groups := append([]*sinkGroup(nil), m.groups...)
	m.mu.Unlock()
	for _, g := range groups {
		for _, s := range g.stack {
			fn(s)
		}
	}
}

// snapshot returns the current groups slice for the decoder loop to
// iterate without holding the sink map lock across buffer delivery.
func (m *sinkMap) snapshot() []*sinkGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*sinkGroup, len(m.groups))
	copy(out, m.groups)
	return out
}

func (m *sinkMap) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.groups)
}
