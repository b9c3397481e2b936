package dashboard

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaypull/fetchd/internal/config"
	"github.com/relaypull/fetchd/internal/types"
)

// History is the job-history log: one row per Done or Failed Job
// transition, persisted to a small SQLite database. A Job dropped after
// exhausting its redirects ends on a Redirect status and gets no row. It is strictly an append-only operational log, never read
// back to resume a download.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the job-history database
// under the state directory.
func OpenHistory() (*History, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	path := filepath.Join(config.GetStateDir(), "history.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &History{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS job_history (
	job_id              INTEGER NOT NULL,
	trace_id            TEXT NOT NULL,
	uri                 TEXT NOT NULL,
	filename            TEXT NOT NULL,
	suggested_filename  TEXT NOT NULL,
	state               TEXT NOT NULL,
	detail              TEXT NOT NULL,
	redirect_count      INTEGER NOT NULL,
	downloaded          INTEGER NOT NULL,
	finished_at         INTEGER NOT NULL,
	PRIMARY KEY (job_id, finished_at)
);
`

// Entry is one row as returned by Recent.
type Entry struct {
	JobID             int
	TraceID           string
	URI               string
	Filename          string
	SuggestedFilename string // Content-Disposition filename, if the server sent one
	State             string
	Detail            string
	RedirectCount     int
	Downloaded        int64
	FinishedAt        time.Time
}

// Recorder appends one terminal-transition row. It is the Sink this
// package exposes for the orchestrator's chained sinks — dashboard
// rendering and history logging both just implement Sink.
type Recorder struct {
	h             *History
	traceOf       func(jobID int) string
	uriOf         func(jobID int) string
	filenameOf    func(jobID int) string
	redirectCount func(jobID int) int
}

// NewRecorder returns a Sink that writes a job_history row whenever a
// Job reaches Done or Failed; Redirect statuses, including the last one
// of a Job dropped after exhausting its redirects, are not recorded.
// The lookup funcs let the caller (the orchestrator, which owns Job
// metadata) supply uri/filename/trace-id/redirect-count without
// History needing to know about orchestrator.Job.
func NewRecorder(h *History, traceOf, uriOf, filenameOf func(jobID int) string, redirectCount func(jobID int) int) *Recorder {
	return &Recorder{h: h, traceOf: traceOf, uriOf: uriOf, filenameOf: filenameOf, redirectCount: redirectCount}
}

func (r *Recorder) Update(jobID int, status types.DownloadStatus) {
	if status.State != types.StateDone && status.State != types.StateFailed {
		return
	}
	_, err := r.h.db.Exec(
		`INSERT INTO job_history (job_id, trace_id, uri, filename, suggested_filename, state, detail, redirect_count, downloaded, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, r.traceOf(jobID), r.uriOf(jobID), r.filenameOf(jobID), status.SuggestedFilename, status.State.String(), status.Detail,
		r.redirectCount(jobID), status.Downloaded, time.Now().Unix(),
	)
	if err != nil {
		return // a history-log failure must never take a download down
	}
}

// Recent returns up to limit most recently finished jobs, newest first.
func (h *History) Recent(limit int) ([]Entry, error) {
	rows, err := h.db.Query(
		`SELECT job_id, trace_id, uri, filename, suggested_filename, state, detail, redirect_count, downloaded, finished_at
		 FROM job_history ORDER BY finished_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var finishedAt int64
		if err := rows.Scan(&e.JobID, &e.TraceID, &e.URI, &e.Filename, &e.SuggestedFilename, &e.State, &e.Detail, &e.RedirectCount, &e.Downloaded, &finishedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.FinishedAt = time.Unix(finishedAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (h *History) Close() error {
	return h.db.Close()
}
