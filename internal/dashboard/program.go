package dashboard

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/relaypull/fetchd/internal/tui/colors"
	"github.com/relaypull/fetchd/internal/types"
)

// updateMsg carries one Sink.Update call into the bubbletea event
// loop; LiveSink.Update does nothing but wrap and Send one of these.
type updateMsg struct {
	jobID  int
	status types.DownloadStatus
}

type quitMsg struct{}

// liveModel is a minimal bubbletea.Model — plain Init/Update/View —
// scaled down to this system's one-callback dashboard contract: there
// is no input handling to speak of, just rows that repaint as updates
// arrive.
type liveModel struct {
	order []int
	rows  map[int]*row
	bars  map[int]progress.Model
	width int
}

func newLiveModel() liveModel {
	return liveModel{
		rows: make(map[int]*row),
		bars: make(map[int]progress.Model),
	}
}

func (m liveModel) Init() tea.Cmd { return nil }

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case quitMsg:
		return m, tea.Quit

	case updateMsg:
		r, ok := m.rows[msg.jobID]
		if !ok {
			r = &row{jobID: msg.jobID}
			m.rows[msg.jobID] = r
			m.order = append(m.order, msg.jobID)
			sort.Ints(m.order)
			m.bars[msg.jobID] = progress.New(progress.WithDefaultGradient())
		}
		r.state = msg.status.State
		r.detail = msg.status.Detail
		r.downloaded = msg.status.Downloaded
		r.expected = msg.status.Expected
		return m, nil
	}
	return m, nil
}

func (m liveModel) View() string {
	var b strings.Builder
	header := lipgloss.NewStyle().Foreground(colors.LightGray).Bold(true)
	b.WriteString(header.Render(fmt.Sprintf("%-4s %-3s %-22s %s", "job", "", "progress", "uri / detail")))
	b.WriteByte('\n')

	for _, id := range m.order {
		r := m.rows[id]
		style := lipgloss.NewStyle().Foreground(r.color())

		pct := 0.0
		if r.expected > 0 {
			pct = float64(r.downloaded) / float64(r.expected)
		} else if r.state == types.StateDone {
			pct = 1
		}
		bar := m.bars[id].ViewAs(pct)

		detail := r.uri
		if r.detail != "" {
			detail = r.detail
		}
		line := fmt.Sprintf("%-4d %-3s %s %s (%s)", r.jobID, r.icon(), bar, detail, humanize.Bytes(uint64(r.downloaded)))
		b.WriteString(style.Render(line))
		b.WriteByte('\n')
	}
	return b.String()
}

// LiveSink drives a full-screen bubbletea dashboard, one Program.Send
// per Update call — the interactive analogue of TableSink's
// plain-writer rendering, for use when stdout is a terminal. chain
// sinks (history, sniff) still run synchronously from Update, same as
// TableSink.
type LiveSink struct {
	prog  *tea.Program
	chain []Sink
}

// NewLiveSink constructs the bubbletea program but does not start it;
// call Run (blocking, typically in its own goroutine) and Quit once
// the orchestrator reports no jobs left running.
func NewLiveSink(chain ...Sink) *LiveSink {
	prog := tea.NewProgram(newLiveModel())
	return &LiveSink{prog: prog, chain: chain}
}

func (s *LiveSink) Update(jobID int, status types.DownloadStatus) {
	s.prog.Send(updateMsg{jobID: jobID, status: status})
	for _, c := range s.chain {
		c.Update(jobID, status)
	}
}

// Run blocks until Quit is called or the user interrupts (ctrl+c).
func (s *LiveSink) Run() error {
	_, err := s.prog.Run()
	return err
}

// Quit ends the dashboard program, returning control to Run's caller.
func (s *LiveSink) Quit() {
	s.prog.Send(quitMsg{})
}
