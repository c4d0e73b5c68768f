package groove

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataSetGetRoundTrip(t *testing.T) {
	f := newFakeFile(testFormat(), 100, 32)
	require.NoError(t, f.MetadataSet("artist", "Boards of Canada", 0))

	v, ok := f.MetadataGet("artist", 0)
	assert.True(t, ok)
	assert.Equal(t, "Boards of Canada", v)

	require.NoError(t, f.MetadataSet("artist", "", 0))
	_, ok = f.MetadataGet("artist", 0)
	assert.False(t, ok)
}

func TestMetadataDontOverwrite(t *testing.T) {
	f := newFakeFile(testFormat(), 100, 32)
	require.NoError(t, f.MetadataSet("album", "Geogaddi", 0))
	require.NoError(t, f.MetadataSet("album", "Music Has the Right to Children", MetadataDontOverwrite))

	v, _ := f.MetadataGet("album", 0)
	assert.Equal(t, "Geogaddi", v)
}

func TestMetadataAppend(t *testing.T) {
	f := newFakeFile(testFormat(), 100, 32)
	require.NoError(t, f.MetadataSet("comment", "part one ", 0))
	require.NoError(t, f.MetadataSet("comment", "part two", MetadataAppend))

	v, _ := f.MetadataGet("comment", 0)
	assert.Equal(t, "part one part two", v)
}

func TestSeekAtZeroOnNeverSeekedFileIsNoOp(t *testing.T) {
	f := newFakeFile(testFormat(), 100, 32)
	f.requestSeek(0, false)

	_, _, pending := f.peekPendingSeek()
	assert.False(t, pending, "a seek to 0 on a never-seeked file should be dropped")
}

func TestSeekAfterFirstSeekIsHonored(t *testing.T) {
	f := newFakeFile(testFormat(), 100, 32)
	f.requestSeek(1.0, true)
	target, flush, pending := f.takePendingSeek()
	require.True(t, pending)
	assert.True(t, flush)
	assert.Equal(t, int64(testSampleRate), target)

	f.requestSeek(0, true)
	_, _, pending = f.peekPendingSeek()
	assert.True(t, pending, "once a file has been seeked, a later seek to 0 is honored")
}

func TestSaveWithNoDirtyMetadataReturnsNoChanges(t *testing.T) {
	f := newFakeFile(testFormat(), 100, 32)
	f.path = "/dev/null" // any existing path; Save should short-circuit before touching it
	err := f.Save()

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindNoChanges, gerr.Kind)
}
