package netio

import (
	"os"
	"sync"
)

// FileEventKind distinguishes the events a File can emit.
type FileEventKind int

const (
	FileOpen FileEventKind = iota
	FileWrite
	FileClose
	FileError
)

// FileEvent is what a File sends on its channel. Exactly one of these
// is emitted per completed operation.
type FileEvent struct {
	Kind         FileEventKind
	BytesWritten int
	Err          error
}

// DefaultFileMode is owner read/write, group read — no world
// permissions.
const DefaultFileMode = 0o640

// File is open/write-at-offset/close/cancel over a single spooled
// destination file. Open is exclusive — an existing file at path is
// treated as a conflict, never silently truncated or appended to.
type File struct {
	mu         sync.Mutex
	f          *os.File
	path       string
	opening    bool // Open's os.OpenFile call is in flight
	openFailed bool // Open's os.OpenFile call already returned an error — nothing on disk to unlink
	cancel     bool // Cancel was requested — Open's completion must unlink
	events     chan FileEvent
	closed     bool
}

// NewFile returns a File handle that has not been opened yet.
func NewFile() *File {
	return &File{events: make(chan FileEvent, 8)}
}

func (f *File) Events() <-chan FileEvent { return f.events }

// Open creates path exclusively (O_CREAT|O_EXCL|O_WRONLY) and emits
// FileOpenEvent or ErrorEvent. path is recorded before the syscall
// runs so a Cancel racing with it still knows what to unlink.
func (f *File) Open(path string) {
	f.mu.Lock()
	f.path = path
	f.opening = true
	f.mu.Unlock()

	go func() {
		handle, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, DefaultFileMode)

		f.mu.Lock()
		f.opening = false
		if err != nil {
			f.openFailed = true
			f.mu.Unlock()
			f.emit(FileEvent{Kind: FileError, Err: err})
			return
		}
		if f.closed {
			cancelled := f.cancel
			f.mu.Unlock()
			handle.Close()
			if cancelled {
				Unlink(path)
			}
			return
		}
		f.f = handle
		f.mu.Unlock()
		f.emit(FileEvent{Kind: FileOpen})
	}()
}

// Write writes data at offset and emits FileWriteEvent(bytes-written)
// or ErrorEvent.
func (f *File) Write(data []byte, offset int64) {
	f.mu.Lock()
	handle := f.f
	f.mu.Unlock()
	if handle == nil {
		f.emit(FileEvent{Kind: FileError, Err: os.ErrInvalid})
		return
	}
	go func() {
		n, err := handle.WriteAt(data, offset)
		if err != nil {
			f.emit(FileEvent{Kind: FileError, Err: err})
			return
		}
		f.emit(FileEvent{Kind: FileWrite, BytesWritten: n})
	}()
}

// Close closes the handle and emits exactly one FileCloseEvent.
func (f *File) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	handle := f.f
	f.mu.Unlock()

	go func() {
		if handle != nil {
			handle.Close()
		}
		f.events <- FileEvent{Kind: FileClose}
	}()
}

// Cancel closes the handle and removes the spooled file — used on a
// failed download to avoid leaving a partial file behind during
// teardown. Safe to call while Open is still in flight: the file may
// not exist on disk yet, in which case Open's own completion (which
// checks the cancel flag set here) unlinks it once the create
// syscall actually finishes. If Open already failed (e.g. the
// exclusive create lost to a pre-existing file at path), nothing was
// ever created by this File and Cancel must not unlink — that would
// delete the pre-existing file the EEXIST was reporting in the first
// place.
func (f *File) Cancel() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.cancel = true
	handle := f.f
	path := f.path
	skipUnlink := f.openFailed
	f.mu.Unlock()

	go func() {
		if handle != nil {
			handle.Close()
		}
		if path != "" && !skipUnlink {
			Unlink(path)
		}
		f.events <- FileEvent{Kind: FileClose}
	}()
}

func (f *File) emit(ev FileEvent) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}
	f.events <- ev
}

// Unlink removes path, swallowing a not-exist error. Used whenever a
// download is aborted after the file was already created.
func Unlink(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
