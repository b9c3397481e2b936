package dashboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaypull/fetchd/internal/config"
	"github.com/relaypull/fetchd/internal/types"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, config.EnsureDirs())
	h, err := OpenHistory()
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRecorder_RecordsOnlyTerminalStates(t *testing.T) {
	h := openTestHistory(t)

	meta := map[int]struct {
		trace, uri, filename string
		redirects            int
	}{
		1: {"trace-1", "http://example.com/a", "a.bin", 0},
	}
	r := NewRecorder(h,
		func(id int) string { return meta[id].trace },
		func(id int) string { return meta[id].uri },
		func(id int) string { return meta[id].filename },
		func(id int) int { return meta[id].redirects },
	)

	r.Update(1, types.DownloadStatus{State: types.StateInFlight, Downloaded: 5})
	r.Update(1, types.DownloadStatus{State: types.StateRedirect, RedirectTo: "http://example.com/b"})
	r.Update(1, types.DownloadStatus{State: types.StateDone, Downloaded: 100})

	entries, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the Done transition should produce a row")
	require.Equal(t, "trace-1", entries[0].TraceID)
	require.Equal(t, "http://example.com/a", entries[0].URI)
	require.Equal(t, "Done", entries[0].State)
	require.EqualValues(t, 100, entries[0].Downloaded)
}

func TestRecorder_RecordsSuggestedFilename(t *testing.T) {
	h := openTestHistory(t)

	r := NewRecorder(h,
		func(int) string { return "trace-3" },
		func(int) string { return "http://example.com/report" },
		func(int) string { return "report.bin" },
		func(int) int { return 0 },
	)

	r.Update(3, types.DownloadStatus{State: types.StateDone, Downloaded: 42, SuggestedFilename: "report-2026.pdf"})

	entries, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "report-2026.pdf", entries[0].SuggestedFilename)
	require.Equal(t, "report.bin", entries[0].Filename, "the actual output path is always the task's fname, never the suggestion")
}

func TestRecorder_RecordsFailedTransitions(t *testing.T) {
	h := openTestHistory(t)

	r := NewRecorder(h,
		func(int) string { return "trace-2" },
		func(int) string { return "http://example.com/missing" },
		func(int) string { return "missing.bin" },
		func(int) int { return 2 },
	)

	r.Update(5, types.DownloadStatus{State: types.StateFailed, Detail: "ConnectError"})

	entries, err := h.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Failed", entries[0].State)
	require.Equal(t, "ConnectError", entries[0].Detail)
	require.Equal(t, 2, entries[0].RedirectCount)
}

func TestHistory_RecentRespectsLimit(t *testing.T) {
	h := openTestHistory(t)

	r := NewRecorder(h,
		func(id int) string { return "trace" },
		func(id int) string { return "uri" },
		func(id int) string { return "file" },
		func(id int) int { return 0 },
	)
	for i := 1; i <= 3; i++ {
		r.Update(i, types.DownloadStatus{State: types.StateDone, Downloaded: int64(i)})
	}

	entries, err := h.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2, "limit must be respected")
}
