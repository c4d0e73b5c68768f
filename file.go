package groove

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dhowden/tag"
)

// MetadataFlag modifies MetadataSet's write semantics, per spec §6.
type MetadataFlag int

const (
	MetadataMatchCase MetadataFlag = 1 << iota
	MetadataDontOverwrite
	MetadataAppend
)

// File wraps an opened media source: a decoder session, the chosen audio
// stream's format, a seek request slot, and a decode clock, per spec §3
// "File".
type File struct {
	path    string
	reader  io.ReadSeeker
	closer  io.Closer
	decoder Decoder

	format    AudioFormat
	shortName string
	duration  float64

	metaMu   sync.Mutex
	metadata map[string]string
	dirty    bool

	// seekMu guards the seek request slot. Lock order position 2, per
	// spec §5: always acquired after decode_head_mutex, never while
	// holding a sink queue mutex.
	seekMu      sync.Mutex
	seekTarget  int64
	seekFlush   bool
	seekPending bool
	everSeeked  bool

	decodeClockMu sync.Mutex
	decodeClock   float64

	aborted atomic.Bool

	log *log.Logger
}

// Open opens a file from a filesystem path. hint is passed to the
// decoder factory (typically a format hint derived from the extension).
// factory overrides the package-level default decoder, letting callers
// wire in a real codec engine per call without a global SetDefaultDecoderFactory.
func Open(path string, hint string, factory ...DecoderFactory) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError("Open", KindFileNotFound, err)
		}
		if os.IsPermission(err) {
			return nil, newError("Open", KindPermissions, err)
		}
		return nil, newError("Open", KindFileSystem, err)
	}
	file, err := openWith(f, f, hint, factory...)
	if err != nil {
		f.Close()
		return nil, err
	}
	file.path = path
	file.readMetadataFromTags(path)
	return file, nil
}

// OpenCustom opens a file over caller-supplied I/O instead of a
// filesystem path, per spec §4.C.
func OpenCustom(io CustomIO, hint string, factory ...DecoderFactory) (*File, error) {
	rs := &customReadSeeker{io: io}
	return openWith(rs, nil, hint, factory...)
}

type customReadSeeker struct {
	io  CustomIO
	pos int64
}

func (c *customReadSeeker) Read(p []byte) (int, error) {
	if c.io.Read == nil {
		return 0, io.ErrClosedPipe
	}
	return c.io.Read(p)
}

func (c *customReadSeeker) Seek(offset int64, whence int) (int64, error) {
	if c.io.Seek == nil {
		return 0, io.ErrClosedPipe
	}
	return c.io.Seek(offset, SeekWhence(whence))
}

func openWith(rs io.ReadSeeker, closer io.Closer, hint string, factory ...DecoderFactory) (*File, error) {
	df := defaultDecoderFactory
	if len(factory) > 0 {
		df = factory[0]
	}
	if df == nil {
		return nil, newError("Open", KindDecoderNotFound, fmt.Errorf("no decoder factory registered"))
	}
	dec, err := df(rs, hint)
	if err != nil {
		return nil, newError("Open", KindUnknownFormat, err)
	}
	f := &File{
		reader:    rs,
		closer:    closer,
		decoder:   dec,
		format:    dec.Format(),
		shortName: dec.ShortName(),
		duration:  dec.Duration(),
		metadata:  map[string]string{},
	}
	f.log = log.With("component", "file", "codec", f.shortName)
	return f, nil
}

func (f *File) readMetadataFromTags(path string) {
	r, err := os.Open(path)
	if err != nil {
		return
	}
	defer r.Close()
	m, err := tag.ReadFrom(r)
	if err != nil {
		f.log.Debug("no tag metadata available", "path", path, "err", err)
		return
	}
	f.metaMu.Lock()
	defer f.metaMu.Unlock()
	setIfNotEmpty(f.metadata, "title", m.Title())
	setIfNotEmpty(f.metadata, "artist", m.Artist())
	setIfNotEmpty(f.metadata, "album", m.Album())
	setIfNotEmpty(f.metadata, "genre", m.Genre())
	if y := m.Year(); y != 0 {
		f.metadata["year"] = fmt.Sprintf("%d", y)
	}
}

func setIfNotEmpty(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}

// Close releases the decoder and the underlying I/O. Closing the File is
// always the caller's responsibility; the core never closes a File on
// its own (spec §3 "Lifecycles").
func (f *File) Close() error {
	f.aborted.Store(true)
	if f.decoder != nil {
		f.decoder.Close()
	}
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// Abort marks the file as aborted, used during teardown: the decoder
// abandons the file at its next decode step. A Decoder call already in
// progress is not interrupted.
func (f *File) Abort() { f.aborted.Store(true) }

// IsAborted reports whether Abort has been called.
func (f *File) IsAborted() bool { return f.aborted.Load() }

// Duration estimates the file's total duration in seconds.
func (f *File) Duration() float64 { return f.duration }

// AudioFormat returns the chosen audio stream's format.
func (f *File) AudioFormat() AudioFormat { return f.format }

// ShortName returns the codec's short identifying name.
func (f *File) ShortName() string { return f.shortName }

// MetadataGet looks up key, honoring MetadataMatchCase (default is
// case-insensitive).
func (f *File) MetadataGet(key string, flags MetadataFlag) (string, bool) {
	f.metaMu.Lock()
	defer f.metaMu.Unlock()
	if flags&MetadataMatchCase != 0 {
		v, ok := f.metadata[key]
		return v, ok
	}
	lk := strings.ToLower(key)
	for k, v := range f.metadata {
		if strings.ToLower(k) == lk {
			return v, true
		}
	}
	return "", false
}

// MetadataSet writes key=value. With MetadataDontOverwrite an existing
// key is left untouched. With MetadataAppend the new value is
// concatenated onto any existing value with no delimiter. Setting value
// to "" removes the key.
func (f *File) MetadataSet(key, value string, flags MetadataFlag) error {
	f.metaMu.Lock()
	defer f.metaMu.Unlock()
	if value == "" {
		delete(f.metadata, key)
		f.dirty = true
		return nil
	}
	if existing, ok := f.metadata[key]; ok {
		if flags&MetadataDontOverwrite != 0 {
			return nil
		}
		if flags&MetadataAppend != 0 {
			value = existing + value
		}
	}
	f.metadata[key] = value
	f.dirty = true
	return nil
}

// requestSeek stores a seek target under seekMu for the decoder to pick
// up on its next decode step. A seek to position 0 on a file that has
// never been seeked is a no-op, per spec §4.C, avoiding an unnecessary
// header reparse.
func (f *File) requestSeek(targetSeconds float64, flush bool) {
	f.seekMu.Lock()
	defer f.seekMu.Unlock()
	targetPts := int64(targetSeconds * float64(f.format.SampleRate))
	if targetPts == 0 && !f.everSeeked {
		return
	}
	f.seekTarget = targetPts
	f.seekFlush = flush
	f.seekPending = true
	f.everSeeked = true
}

// takePendingSeek atomically reads and clears the pending seek request.
func (f *File) takePendingSeek() (target int64, flush bool, ok bool) {
	f.seekMu.Lock()
	defer f.seekMu.Unlock()
	if !f.seekPending {
		return 0, false, false
	}
	target, flush = f.seekTarget, f.seekFlush
	f.seekPending = false
	return target, flush, true
}

func (f *File) setDecodeClock(seconds float64) {
	f.decodeClockMu.Lock()
	f.decodeClock = seconds
	f.decodeClockMu.Unlock()
}

// Position returns the file's current decode clock, in seconds.
func (f *File) Position() float64 {
	f.decodeClockMu.Lock()
	defer f.decodeClockMu.Unlock()
	return f.decodeClock
}

// Save overwrites the file in place. SaveAs writes to a new path. Both
// use a temp-then-rename pattern so a crash mid-write never corrupts the
// original, per spec §4.C. Because remuxing packets into a new container
// is the codec engine's job (out of core scope, spec §1), these copy the
// original bytes verbatim; only in-memory metadata dirtiness is tracked,
// returning KindNoChanges when there is nothing to write.
func (f *File) Save() error {
	if f.path == "" {
		return newError("Save", KindInvalid, fmt.Errorf("file has no backing path"))
	}
	return f.saveAsInternal(f.path)
}

func (f *File) SaveAs(path string) error {
	return f.saveAsInternal(path)
}

func (f *File) saveAsInternal(path string) error {
	f.metaMu.Lock()
	dirty := f.dirty
	f.metaMu.Unlock()
	if !dirty && path == f.path {
		return newError("Save", KindNoChanges, nil)
	}
	if f.path == "" {
		return newError("SaveAs", KindInvalid, fmt.Errorf("no source bytes to remux"))
	}
	tmp := path + ".groove-tmp"
	src, err := os.Open(f.path)
	if err != nil {
		return newError("SaveAs", KindFileSystem, err)
	}
	defer src.Close()
	dst, err := os.Create(tmp)
	if err != nil {
		return newError("SaveAs", KindFileSystem, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return newError("SaveAs", KindFileSystem, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return newError("SaveAs", KindFileSystem, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return newError("SaveAs", KindFileSystem, err)
	}
	f.metaMu.Lock()
	f.dirty = false
	f.metaMu.Unlock()
	return nil
}
