// Package orchestrator implements the on-tick dispatcher that keeps a
// bounded pool of Jobs alive, refilling from the task list on
// Done/Failed and following redirects up to a bound.
package orchestrator

import (
	"container/list"
	"context"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/relaypull/fetchd/internal/downloader"
	"github.com/relaypull/fetchd/internal/fslog"
	"github.com/relaypull/fetchd/internal/sockfactory"
	"github.com/relaypull/fetchd/internal/tasklist"
	"github.com/relaypull/fetchd/internal/types"
)

// Sink is the dashboard's contract: one Update call per terminal
// transition, nothing else required of it.
type Sink interface {
	Update(jobID int, status types.DownloadStatus)
}

// Job is a unit of in-flight work: a stable id, the task it currently
// runs, its redirect counter, and the downloader currently bound to
// it. The Orchestrator holds the only strong reference to a Job; a
// Job holds the only strong reference to its Downloader.
type Job struct {
	id            int
	traceID       string
	task          types.Task
	redirectCount int
	dl            *downloader.Downloader
}

func (j *Job) ID() int                      { return j.id }
func (j *Job) RedirectCount() int           { return j.redirectCount }
func (j *Job) Status() types.DownloadStatus { return j.dl.Status() }

// Orchestrator holds a doubly-linked list of Jobs (container/list
// gives ordered, O(1)-removal iteration with no third-party list
// library to prefer over it), a weak reference to the socket factory
// so it never extends the factory's lifetime, the task source, a
// dashboard sink, and the redirect bound.
type Orchestrator struct {
	mu          sync.Mutex
	jobs        *list.List
	byID        map[int]*list.Element
	nextID      int
	factory     weak.Pointer[sockfactory.Factory]
	tasks       *tasklist.List
	sink        Sink
	runtime     *types.RuntimeConfig
	ctx         context.Context
	concurrency int
}

// New returns an Orchestrator. factory must outlive the Orchestrator
// for it to do any work at all; the Orchestrator itself only ever
// holds a weak.Pointer to it — a "don't keep alive, notice when gone"
// reference, unlike the bandwidth controller's stream registrations.
func New(factory *sockfactory.Factory, tasks *tasklist.List, sink Sink, runtime *types.RuntimeConfig) *Orchestrator {
	return &Orchestrator{
		jobs:        list.New(),
		byID:        make(map[int]*list.Element),
		factory:     weak.Make(factory),
		tasks:       tasks,
		sink:        sink,
		runtime:     runtime,
		concurrency: runtime.GetConcurrency(),
	}
}

// Start primes the pool: pull tasks from the list until concurrency
// jobs are running or the list is exhausted.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.ctx = ctx
	o.mu.Unlock()

	for i := 0; i < o.concurrency; i++ {
		if !o.fillOne() {
			break
		}
	}
}

// Running reports how many Jobs are currently tracked (for tests and
// the dashboard's idle/done detection).
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobs.Len()
}

// fillOne pulls the next task off the list and starts a Job for it,
// skipping tasks whose downloader fails to construct, until one
// succeeds or the list is exhausted. Returns false once the task list
// is exhausted with nothing started.
func (o *Orchestrator) fillOne() bool {
	for {
		o.mu.Lock()
		task, ok := o.tasks.Next()
		o.mu.Unlock()
		if !ok {
			return false
		}
		if o.startJob(task) {
			return true
		}
	}
}

// startJob constructs a downloader for task and, on success, inserts
// a new Job at the back of the list and starts it. Construction
// failure (e.g. an unparsable URI) means the task is simply skipped —
// it never occupies a Job slot and never enters InFlight.
func (o *Orchestrator) startJob(task types.Task) bool {
	factory := o.factory.Value()
	if factory == nil {
		fslog.Debug("orchestrator: factory is gone, not starting %q", task.URI)
		return false
	}

	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.mu.Unlock()

	job := &Job{id: id, traceID: uuid.New().String(), task: task}
	dl, err := downloader.New(id, task, o.runtime, factory, o.invoke)
	if err != nil {
		fslog.Debug("orchestrator: job %d refused %q: %v", id, task.URI, err)
		return false
	}
	job.dl = dl

	o.mu.Lock()
	el := o.jobs.PushBack(job)
	o.byID[id] = el
	o.mu.Unlock()

	dl.Start(o.ctx)
	return true
}

// invoke is every Downloader's OnTick hook. It is called from
// whichever Downloader's own goroutine just reached a terminal state,
// so the Orchestrator's job list is guarded by mu.
func (o *Orchestrator) invoke(dl *downloader.Downloader) {
	o.mu.Lock()
	el, ok := o.byID[dl.ID()]
	o.mu.Unlock()
	if !ok {
		fslog.Debug("orchestrator: invoke for unknown job id %d", dl.ID())
		return
	}
	job := el.Value.(*Job)
	status := dl.Status()

	if o.sink != nil {
		o.sink.Update(job.id, status)
	}

	switch status.State {
	case types.StateDone, types.StateFailed:
		o.removeJob(el)
		o.fillOne()

	case types.StateRedirect:
		o.redirect(el, job, status.RedirectTo)

	default:
		// InFlight: nothing to do.
	}
}

// redirect pre-increments the job's redirect count; past max_redirect
// it falls through to the same next-task path as Done/Failed.
// Otherwise a replacement downloader is constructed for the redirect
// target with the same fname, and the Job is updated in place — same
// id, new task — keeping the redirect count monotonic and bounded by
// max_redirect+1.
func (o *Orchestrator) redirect(el *list.Element, job *Job, target string) {
	job.redirectCount++
	if job.redirectCount > o.runtime.GetMaxRedirect() {
		fslog.Debug("job %d: redirect limit exceeded (%d)", job.id, job.redirectCount)
		o.removeJob(el)
		o.fillOne()
		return
	}

	factory := o.factory.Value()
	if factory == nil {
		fslog.Debug("orchestrator: factory is gone, dropping redirected job %d", job.id)
		o.removeJob(el)
		return
	}

	newTask := types.Task{URI: target, Filename: job.task.Filename}
	dl, err := downloader.New(job.id, newTask, o.runtime, factory, o.invoke)
	if err != nil {
		fslog.Debug("job %d: redirect target %q refused: %v", job.id, target, err)
		o.removeJob(el)
		o.fillOne()
		return
	}

	job.task = newTask
	job.dl = dl
	dl.Start(o.ctx)
}

// TraceID, URI, Filename, and JobRedirectCount look up a still-tracked
// Job's metadata by id — used as the lookup callbacks a chained
// dashboard.Recorder needs for trace-id correlation, valid only while
// invoke() is dispatching that Job's own terminal transition (the Job
// is still present in byID at that point).
func (o *Orchestrator) TraceID(jobID int) string  { return o.jobField(jobID, func(j *Job) string { return j.traceID }) }
func (o *Orchestrator) URI(jobID int) string      { return o.jobField(jobID, func(j *Job) string { return j.task.URI }) }
func (o *Orchestrator) Filename(jobID int) string { return o.jobField(jobID, func(j *Job) string { return j.task.Filename }) }
func (o *Orchestrator) JobRedirectCount(jobID int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	el, ok := o.byID[jobID]
	if !ok {
		return 0
	}
	return el.Value.(*Job).redirectCount
}

func (o *Orchestrator) jobField(jobID int, get func(*Job) string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	el, ok := o.byID[jobID]
	if !ok {
		return ""
	}
	return get(el.Value.(*Job))
}

func (o *Orchestrator) removeJob(el *list.Element) {
	o.mu.Lock()
	job := el.Value.(*Job)
	delete(o.byID, job.id)
	o.jobs.Remove(el)
	o.mu.Unlock()
}
