// Package portaudio is a reference implementation of the out-of-core
// "system audio sink" collaborator described in spec §6: an ordinary
// groove.Sink client that writes buffers to a real output device via
// github.com/gordonklaus/portaudio. It adds no core architecture; it
// exists only to give that dependency a concrete, exercised home, the
// way the scope note in spec §1 says device sinks should be built.
package portaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/groove-audio/groove"
)

// DeviceSink drives a portaudio output stream from a groove.Sink.
type DeviceSink struct {
	Sink *groove.Sink

	mu      sync.Mutex
	stream  *portaudio.Stream
	out     []float32
	latency time.Duration
	quit    chan struct{}
	done    chan struct{}
}

// Open initializes portaudio, opens the default output device at the
// given format, and builds the Sink declaring that single format as its
// only acceptable shape.
func Open(format groove.AudioFormat, framesPerBuffer int) (*DeviceSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	device, err := portaudio.DefaultOutputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: default output device: %w", err)
	}

	d := &DeviceSink{
		out:     make([]float32, framesPerBuffer*format.Channels()),
		latency: device.DefaultLowOutputLatency,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	d.Sink = groove.NewSink(groove.SinkConfig{
		BufferSizeBytes: framesPerBuffer * format.BytesPerFrame() * 4,
		Pause:           d.pauseStream,
		Play:            d.resumeStream,
		Flush:           func() {},
		Purge:           func() {},
	})
	d.Sink.SetOnlyFormat(format)

	stream, err := portaudio.OpenDefaultStream(0, format.Channels(), float64(format.SampleRate), framesPerBuffer, &d.out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open default stream: %w", err)
	}
	d.stream = stream
	return d, nil
}

// Start begins the device's blocking write loop on its own goroutine,
// pulling buffers from the Sink's queue via BufferGet(block=true) and
// writing each one to the stream; no device callback is used.
func (d *DeviceSink) Start() error {
	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start stream: %w", err)
	}
	go d.writeLoop()
	return nil
}

func (d *DeviceSink) writeLoop() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		default:
		}
		buf, status := d.Sink.BufferGet(true)
		switch status {
		case groove.BufferEnd:
			continue
		case groove.BufferNo:
			return
		}
		copyFloats(d.out, buf)
		if err := d.stream.Write(); err != nil {
			buf.Unref()
			return
		}
		buf.Unref()
	}
}

func copyFloats(dst []float32, buf *groove.Buffer) {
	n := len(dst)
	if buf.Frames.Len() < n {
		n = buf.Frames.Len()
	}
	for i := 0; i < n; i++ {
		dst[i] = float32(buf.Frames.Sample(i))
	}
}

func (d *DeviceSink) pauseStream() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stream.Stop()
}

func (d *DeviceSink) resumeStream() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stream.Start()
}

// Latency reports the output device's advertised low-latency figure in
// seconds, used to offset position queries backward from the decode head
// per spec §6.
func (d *DeviceSink) Latency() float64 {
	return d.latency.Seconds()
}

// Close stops the write loop and tears down the stream.
func (d *DeviceSink) Close() error {
	close(d.quit)
	<-d.done
	err := d.stream.Close()
	portaudio.Terminate()
	return err
}
