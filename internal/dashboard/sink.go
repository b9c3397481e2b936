// Package dashboard implements the external reporter sink (§6):
// update(job_id, status) once per terminal transition, rendered as a
// live table in the style of the teacher's internal/tui status/colors
// components, plus two supplemented features: a SQLite job-history log
// (history.go) and completion-time content sniffing (sniff.go).
package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/relaypull/fetchd/internal/tui/colors"
	"github.com/relaypull/fetchd/internal/types"
)

// row is one Job's last-seen status, kept only for rendering; the
// orchestrator is the source of truth, the dashboard only observes.
type row struct {
	jobID      int
	uri        string
	state      types.State
	detail     string
	downloaded int64
	expected   int64
	updatedAt  time.Time
}

func (r row) icon() string {
	switch r.state {
	case types.StateDone:
		return "✔"
	case types.StateFailed:
		return "✖"
	case types.StateRedirect:
		return "↪"
	case types.StateInFlight:
		return "⬇"
	default:
		return "⋯"
	}
}

func (r row) color() lipgloss.Color {
	switch r.state {
	case types.StateDone:
		return colors.StateDone
	case types.StateFailed:
		return colors.StateError
	case types.StateRedirect:
		return colors.Warning
	case types.StateInFlight:
		return colors.StateDownloading
	default:
		return colors.StatePaused
	}
}

// TableSink is a dashboard Sink that renders a live lipgloss table of
// every Job's last-seen status to an io.Writer each time it changes —
// a plain-terminal analogue of the teacher's bubbletea dashboard,
// scaled down to this system's §6 contract (one Update call per
// terminal transition, no other callback required), so it has no need
// for bubbletea's event loop: a direct render on each Update is
// simpler and just as correct.
type TableSink struct {
	mu    sync.Mutex
	rows  map[int]*row
	out   func(string)
	chain []Sink // additional sinks invoked after rendering (history, sniff)
}

// Sink is satisfied by orchestrator.Sink; declared again here (not
// imported) so dashboard has no dependency on the orchestrator
// package — it is the orchestrator that depends on dashboard's Sink
// implementations, never the other way around.
type Sink interface {
	Update(jobID int, status types.DownloadStatus)
}

// NewTableSink returns a TableSink that writes its rendered table via
// write (typically fmt.Print or a terminal writer) and also forwards
// every update to each of chain, in order, after rendering.
func NewTableSink(write func(string), chain ...Sink) *TableSink {
	return &TableSink{rows: make(map[int]*row), out: write, chain: chain}
}

// SetURI records the task URI for a job so the table can show it —
// the orchestrator knows this at Job-creation time, before any status
// update arrives.
func (s *TableSink) SetURI(jobID int, uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.rowLocked(jobID)
	r.uri = uri
}

func (s *TableSink) rowLocked(jobID int) *row {
	r, ok := s.rows[jobID]
	if !ok {
		r = &row{jobID: jobID}
		s.rows[jobID] = r
	}
	return r
}

func (s *TableSink) Update(jobID int, status types.DownloadStatus) {
	s.mu.Lock()
	r := s.rowLocked(jobID)
	r.state = status.State
	r.detail = status.Detail
	r.downloaded = status.Downloaded
	r.expected = status.Expected
	r.updatedAt = time.Now()
	rendered := s.renderLocked()
	s.mu.Unlock()

	if s.out != nil {
		s.out(rendered)
	}
	for _, c := range s.chain {
		c.Update(jobID, status)
	}
}

func (s *TableSink) renderLocked() string {
	ids := make([]int, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var b strings.Builder
	header := lipgloss.NewStyle().Foreground(colors.LightGray).Bold(true)
	b.WriteString(header.Render(fmt.Sprintf("%-4s %-6s %-9s %s", "job", "", "progress", "uri / detail")))
	b.WriteByte('\n')

	for _, id := range ids {
		r := s.rows[id]
		style := lipgloss.NewStyle().Foreground(r.color())
		progress := humanize.Bytes(uint64(r.downloaded))
		if r.expected > 0 {
			progress = fmt.Sprintf("%s/%s", humanize.Bytes(uint64(r.downloaded)), humanize.Bytes(uint64(r.expected)))
		}
		detail := r.uri
		if r.detail != "" {
			detail = r.detail
		}
		line := fmt.Sprintf("%-4d %-6s %-9s %s", r.jobID, r.icon(), progress, detail)
		b.WriteString(style.Render(line))
		b.WriteByte('\n')
	}
	return b.String()
}
