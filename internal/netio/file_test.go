package netio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFileEvent(t *testing.T, ch <-chan FileEvent, kind FileEventKind) FileEvent {
	t.Helper()
	select {
	case ev := <-ch:
		require.Equal(t, kind, ev.Kind, "got %+v", ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event kind %d", kind)
	}
	return FileEvent{}
}

func TestFile_OpenWriteClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	f := NewFile()
	f.Open(path)
	waitFileEvent(t, f.Events(), FileOpen)

	f.Write([]byte("hello"), 0)
	ev := waitFileEvent(t, f.Events(), FileWrite)
	assert.Equal(t, 5, ev.BytesWritten)

	f.Write([]byte("world"), 5)
	waitFileEvent(t, f.Events(), FileWrite)

	f.Close()
	waitFileEvent(t, f.Events(), FileClose)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DefaultFileMode), info.Mode().Perm())
}

func TestFile_OpenExclusiveFailsOnExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o640))

	f := NewFile()
	f.Open(path)
	ev := waitFileEvent(t, f.Events(), FileError)
	assert.True(t, os.IsExist(ev.Err))
}

func TestFile_CancelAfterExclusiveOpenFailureDoesNotUnlinkExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("pre-existing"), 0o640))

	f := NewFile()
	f.Open(path)
	ev := waitFileEvent(t, f.Events(), FileError)
	assert.True(t, os.IsExist(ev.Err))

	f.Cancel()
	waitFileEvent(t, f.Events(), FileClose)

	data, err := os.ReadFile(path)
	require.NoError(t, err, "pre-existing file must survive a failed exclusive open")
	assert.Equal(t, "pre-existing", string(data))
}

func TestFile_CancelRemovesSpooledFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.bin")

	f := NewFile()
	f.Open(path)
	waitFileEvent(t, f.Events(), FileOpen)

	f.Write([]byte("partial"), 0)
	waitFileEvent(t, f.Events(), FileWrite)

	f.Cancel()
	waitFileEvent(t, f.Events(), FileClose)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUnlink_MissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	err := Unlink(filepath.Join(dir, "missing.bin"))
	assert.NoError(t, err)
}
