package types

// State is a Job's terminal or transient lifecycle state.
type State int

const (
	StateInit State = iota
	StateInFlight
	StateDone
	StateFailed
	StateRedirect
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateInFlight:
		return "InFlight"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	case StateRedirect:
		return "Redirect"
	default:
		return "Unknown"
	}
}

// ErrorKind classifies a Failed status. The zero value means
// "not a failure".
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrUriParse
	ErrResolve
	ErrConnect
	ErrWrite
	ErrRead
	ErrParse
	ErrFileOpen
	ErrFileWrite
	ErrFileClose
	ErrAborted
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUriParse:
		return "UriParseError"
	case ErrResolve:
		return "ResolveError"
	case ErrConnect:
		return "ConnectError"
	case ErrWrite:
		return "WriteError"
	case ErrRead:
		return "ReadError"
	case ErrParse:
		return "ParseError"
	case ErrFileOpen:
		return "FileOpenError"
	case ErrFileWrite:
		return "FileWriteError"
	case ErrFileClose:
		return "FileCloseError"
	case ErrAborted:
		return "Aborted"
	default:
		return "None"
	}
}

// DownloadStatus is a snapshot of a Job's progress. Created once per
// downloader, mutated only by the downloader that owns it.
type DownloadStatus struct {
	Downloaded int64 // monotonic non-decreasing
	Expected   int64 // 0 means unknown — never guessed at
	State      State
	Detail     string
	ErrorKind  ErrorKind
	RedirectTo string // only meaningful when State == StateRedirect

	// SuggestedFilename is the server's Content-Disposition filename,
	// if any. Purely informational — the task list's fname is always
	// the actual output path; this is never used to choose or rename
	// the file on disk.
	SuggestedFilename string
}
