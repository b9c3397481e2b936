package dashboard

import (
	"os"

	"github.com/h2non/filetype"

	"github.com/relaypull/fetchd/internal/fslog"
	"github.com/relaypull/fetchd/internal/types"
)

// Sniffer runs on a Job's Done transition: it reads the first bytes
// of the completed file and logs the magic type it finds there, as
// its own chained Sink so it runs unconditionally for every
// completed download.
type Sniffer struct {
	filenameOf func(jobID int) string
}

// NewSniffer returns a Sink that content-sniffs a Job's output file the
// moment it reaches StateDone. filenameOf must return the same path the
// orchestrator wrote to — supplied as a lookup func for the same reason
// Recorder takes one: the dashboard package must not import orchestrator.
func NewSniffer(filenameOf func(jobID int) string) *Sniffer {
	return &Sniffer{filenameOf: filenameOf}
}

func (s *Sniffer) Update(jobID int, status types.DownloadStatus) {
	if status.State != types.StateDone {
		return
	}
	path := s.filenameOf(jobID)
	if path == "" {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		fslog.Debug("sniff: job %d: %v", jobID, err)
		return
	}
	defer f.Close()

	header := make([]byte, 261) // filetype reads at most this many bytes for any matcher
	n, err := f.Read(header)
	if err != nil && n == 0 {
		fslog.Debug("sniff: job %d: reading header: %v", jobID, err)
		return
	}
	header = header[:n]

	kind, err := filetype.Match(header)
	if err != nil || kind == filetype.Unknown {
		fslog.Debug("sniff: job %d: %s: unrecognized content", jobID, path)
		return
	}
	fslog.Debug("sniff: job %d: %s detected as %s (%s)", jobID, path, kind.Extension, kind.MIME)
}
