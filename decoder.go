package groove

import (
	"io"
)

// decodeLoop is the single background goroutine started by Create. It
// implements the pseudocode in spec §4.F: pull compressed frames from
// the decode head's File, push them through the filter graph, and fan
// the result out to every attached sink's queue, backing off when
// downstream queues are full.
func (p *Playlist) decodeLoop() {
	defer close(p.decoderDone)

	var graph *filterGraph

	for {
		p.mu.Lock()
		if p.quit {
			p.mu.Unlock()
			return
		}
		head := p.decodeHead
		if head == nil {
			if !p.sentEndOfQ {
				p.sentEndOfQ = true
				groups := p.sinks.snapshot()
				p.mu.Unlock()
				for _, g := range groups {
					for _, s := range g.stack {
						s.queue.Put(endOfPlaylistItem())
					}
				}
				p.mu.Lock()
			}
			for p.decodeHead == nil && !p.quit {
				p.cond.Wait()
			}
			quit := p.quit
			p.mu.Unlock()
			if quit {
				return
			}
			continue
		}
		if p.paused {
			for p.paused && !p.quit {
				p.cond.Wait()
			}
			quit := p.quit
			p.mu.Unlock()
			if quit {
				return
			}
			continue
		}
		p.sentEndOfQ = false
		playlistGain := p.gain
		p.mu.Unlock()

		_, flush, hasSeek := head.file.peekPendingSeek()
		if p.detectFullSinks() && !(hasSeek && flush) {
			p.waitForDrain()
			continue
		}

		newGraph, eof := p.decodeOneFrame(head, graph, playlistGain)
		graph = newGraph

		if eof {
			p.mu.Lock()
			if p.decodeHead == head {
				p.decodeHead = head.next
				if p.decodeHead != nil {
					p.decodeHead.file.requestSeek(0, false)
				}
			}
			p.mu.Unlock()
			graph = nil
		}
	}
}

// waitForDrain blocks until detectFullSinks no longer holds, or the
// playlist is destroyed.
func (p *Playlist) waitForDrain() {
	for {
		p.mu.Lock()
		quit := p.quit
		p.mu.Unlock()
		if quit || !p.detectFullSinks() {
			return
		}
		p.drainMu.Lock()
		p.drainCond.Wait()
		p.drainMu.Unlock()
	}
}

// detectFullSinks folds the per-sink "full" predicate across every
// attached sink according to the current fill mode, per spec §4.F/§4.G.
// An empty sink map counts as "not full".
func (p *Playlist) detectFullSinks() bool {
	p.mu.Lock()
	mode := p.fillMode
	p.mu.Unlock()

	any, all, count := false, true, 0
	p.sinks.forEach(func(s *Sink) {
		count++
		if s.isFull() {
			any = true
		} else {
			all = false
		}
	})
	if count == 0 {
		return false
	}
	if mode == FillAnySinkFull {
		return any
	}
	return all
}

// decodeOneFrame implements the body of spec §4.F's decode_one_frame:
// apply a pending seek, read one decoded frame (or drain codec residuals
// on EOF), rebuild the filter graph if its inputs changed, and deliver
// the result to every sink. Returns the possibly-rebuilt graph and
// whether the item is now exhausted.
func (p *Playlist) decodeOneFrame(head *PlaylistItem, graph *filterGraph, playlistGain float64) (*filterGraph, bool) {
	file := head.file
	if file.IsAborted() {
		return graph, true
	}

	if target, flush, ok := file.takePendingSeek(); ok {
		if err := file.decoder.Seek(target); err != nil {
			file.log.Warn("seek failed", "err", err)
		}
		if flush {
			p.sinks.forEach(func(s *Sink) {
				s.queue.Flush()
				if s.onFlush != nil {
					s.onFlush()
				}
			})
		}
	}

	frame, err := file.decoder.DecodeFrame()
	if err == io.EOF {
		if residual, ok := file.decoder.Flush(); ok {
			frame = residual
		} else {
			return graph, true
		}
	} else if err != nil {
		file.log.Warn("decode error, abandoning item", "err", err)
		return graph, true
	}

	if frame.Frames == nil {
		// Not an audio stream, or a flush call with nothing pending:
		// drop silently, matching spec §4.F "if not audio stream -> drop".
		return graph, false
	}

	groups := p.sinks.snapshot()
	input := file.AudioFormat()
	key := buildKey(input, playlistGain, head, groups)
	if graph.needsRebuild(key) {
		graph = buildGraph(input, playlistGain, head, groups)
	}

	outputs := graph.apply(frame.Frames)
	for _, g := range groups {
		floats, ok := outputs[g]
		if !ok {
			continue
		}
		outFormat := exampleFormatOf(g.example)
		outputBytes := floats.Len() * outFormat.SampleFormat.BytesPerSample()
		file.advanceClock(frame.Pts, outputBytes, input)
		b := newBuffer(outFormat, floats, head, frame.Pts, file.Position())
		for _, s := range g.stack {
			b.Ref()
			s.queue.Put(bufferItem(b))
			if s.onBufferFilled != nil {
				s.onBufferFilled(b)
			}
		}
		b.Unref() // release the decoder's own traversal reference
	}

	return graph, false
}

// peekPendingSeek reads the seek slot without clearing it, used only to
// decide whether backpressure should be bypassed for a flushing seek.
func (f *File) peekPendingSeek() (target int64, flush bool, pending bool) {
	f.seekMu.Lock()
	defer f.seekMu.Unlock()
	return f.seekTarget, f.seekFlush, f.seekPending
}

// advanceClock updates the file's decode clock per spec §4.F: a pts gap
// advances the clock by produced-bytes/bytes-per-second; otherwise the
// clock snaps to the packet pts.
func (f *File) advanceClock(pts int64, outputBytes int, format AudioFormat) {
	if pts == NoPts {
		bps := format.BytesPerSecond()
		if bps <= 0 {
			return
		}
		f.decodeClockMu.Lock()
		f.decodeClock += float64(outputBytes) / float64(bps)
		f.decodeClockMu.Unlock()
		return
	}
	if format.SampleRate <= 0 {
		return
	}
	f.setDecodeClock(float64(pts) / float64(format.SampleRate))
}
