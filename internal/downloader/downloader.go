// Package downloader implements the per-task state machine:
// INIT -> RESOLVING -> CONNECTING -> WRITING_REQUEST ->
// READING_HEADERS/BODY -> CLOSING. A Downloader owns its Resolver,
// Timer, Socket, and File outright and is the only goroutine that
// reads from any of their event channels — the same single-owner
// idiom internal/timerio and internal/netio already establish.
package downloader

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/relaypull/fetchd/internal/httpwire"
	"github.com/relaypull/fetchd/internal/netio"
	"github.com/relaypull/fetchd/internal/sockfactory"
	"github.com/relaypull/fetchd/internal/timerio"
	"github.com/relaypull/fetchd/internal/types"
)

// OnTick is invoked exactly once per terminal transition (Done,
// Failed, Redirect) — the orchestrator's hook into each downloader.
type OnTick func(d *Downloader)

// Downloader drives one Job's Task to completion.
type Downloader struct {
	id      int
	task    types.Task
	runtime *types.RuntimeConfig
	factory *sockfactory.Factory
	onTick  OnTick

	uri     httpwire.ParsedURI
	httpReq *http.Request

	ph     phase
	status types.DownloadStatus

	ctx    context.Context
	cancel context.CancelFunc

	resolver       *netio.Resolver
	resolverEvents <-chan netio.ResolveEvent

	sock       netio.Socket
	sockEvents <-chan netio.SocketEvent

	timer       *timerio.Timer
	timerEvents <-chan timerio.Event

	file              *netio.File
	fileEvents        <-chan netio.FileEvent
	fileOpened        bool
	fileClosed        bool
	fileOffset        int64
	fileWriteInFlight bool

	parser       *httpwire.ResponseParser
	parserEvents <-chan httpwire.ResponseEvent
	parserDone   bool
	redirectPending string

	// body-to-file FIFO (backpressure)
	bodyFIFO     []types.DataChunk
	backlog      int
	socketPaused bool // socket stopped purely due to FIFO backpressure

	sockPendingClose bool
	sockClosed       bool
	filePendingClose bool

	ticked   bool
	terminal bool
}

// New validates task.URI and constructs a Downloader, but does not
// start it. A parse failure means the task refuses to run and never
// enters InFlight — the caller must not insert a Job for it.
func New(id int, task types.Task, runtime *types.RuntimeConfig, factory *sockfactory.Factory, onTick OnTick) (*Downloader, error) {
	u, err := httpwire.ParseURI(task.URI)
	if err != nil {
		return nil, fmt.Errorf("downloader: %w", err)
	}
	httpReq, err := http.NewRequest(http.MethodGet, task.URI, nil)
	if err != nil {
		return nil, fmt.Errorf("downloader: %w", err)
	}

	d := &Downloader{
		id:      id,
		task:    task,
		runtime: runtime,
		factory: factory,
		onTick:  onTick,
		uri:     u,
		httpReq: httpReq,
		backlog: runtime.GetBacklog(),
		status:  types.DownloadStatus{State: types.StateInit},
	}
	return d, nil
}

// ID returns the Job id this downloader is running for.
func (d *Downloader) ID() int { return d.id }

// Status returns a snapshot of the current DownloadStatus.
func (d *Downloader) Status() types.DownloadStatus { return d.status }

// Start launches the state machine's goroutine.
func (d *Downloader) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.resolver = netio.NewResolver()
	d.resolverEvents = d.resolver.Events()
	d.timer = timerio.New()
	d.timerEvents = d.timer.Events()

	d.status.State = types.StateInFlight
	d.ph = phaseResolving
	d.resolver.Resolve(d.ctx, d.uri.Host)
	d.armTimer()

	go d.loop()
}

// Stop requests external cancellation (Aborted).
func (d *Downloader) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.fail(types.ErrAborted, "aborted by stop()")
}

func (d *Downloader) armTimer() {
	_ = d.timer.Start(d.runtime.GetPhaseTimeout(), 0)
}

func (d *Downloader) clearTimer() {
	d.timer.Stop()
}

func (d *Downloader) loop() {
	for !d.terminal {
		select {
		case ev, ok := <-d.resolverEvents:
			if !ok {
				d.resolverEvents = nil
				continue
			}
			d.onResolveEvent(ev)
		case ev, ok := <-d.timerEvents:
			if !ok {
				d.timerEvents = nil
				continue
			}
			d.onTimerEvent(ev)
		case ev, ok := <-d.sockEvents:
			if !ok {
				d.sockEvents = nil
				continue
			}
			d.onSockEvent(ev)
		case ev, ok := <-d.fileEvents:
			if !ok {
				d.fileEvents = nil
				continue
			}
			d.onFileEvent(ev)
		case ev, ok := <-d.parserEvents:
			if !ok {
				d.parserEvents = nil
				continue
			}
			d.onParserEvent(ev)
		}
	}
}

// --- resolver ---

func (d *Downloader) onResolveEvent(ev netio.ResolveEvent) {
	if d.ph != phaseResolving {
		return
	}
	if ev.Kind == netio.ResolveError || ev.IP == nil {
		d.fail(types.ErrResolve, "resolve failed: "+errString(ev.Err))
		return
	}
	d.clearTimer()
	d.ph = phaseConnecting
	d.sock = d.factory.NewSocket()
	d.sockEvents = d.sock.Events()
	d.sock.Connect(d.ctx, ev.IP, d.uri.Port)
	d.armTimer()
}

// --- timer ---

func (d *Downloader) onTimerEvent(ev timerio.Event) {
	if ev.Kind != timerio.EventFire {
		return
	}
	switch d.ph {
	case phaseResolving:
		d.resolver.Cancel()
		d.fail(types.ErrResolve, "Timeout resolve host")
	case phaseConnecting:
		d.fail(types.ErrConnect, "Timeout connect to host")
	case phaseWritingRequest:
		d.fail(types.ErrWrite, "Timeout write request")
	case phaseReadingHeaders, phaseReadingBody:
		d.fail(types.ErrRead, "Timeout read response")
	}
}

// --- socket ---

func (d *Downloader) onSockEvent(ev netio.SocketEvent) {
	switch ev.Kind {
	case netio.SockConnect:
		if d.ph != phaseConnecting {
			return
		}
		d.clearTimer()
		d.ph = phaseWritingRequest
		req := httpwire.BuildGetRequest(d.uri)
		if err := d.sock.Write(req); err != nil {
			d.fail(types.ErrWrite, "write request: "+err.Error())
			return
		}
		d.armTimer()

	case netio.SockWrite:
		if d.ph != phaseWritingRequest {
			return
		}
		d.clearTimer()
		d.ph = phaseReadingHeaders
		d.parser = httpwire.NewResponseParser(d.httpReq)
		d.parserEvents = d.parser.Events()
		d.parser.Start()
		d.sock.Read()
		d.armTimer()

	case netio.SockData:
		if d.ph != phaseReadingHeaders && d.ph != phaseReadingBody {
			return
		}
		if err := d.parser.Feed(ev.Data); err != nil {
			d.fail(types.ErrRead, "feed parser: "+err.Error())
			return
		}

	case netio.SockEnd:
		if d.ph == phaseReadingHeaders || d.ph == phaseReadingBody {
			d.parser.CloseWithEOF()
			if !d.parserDone {
				d.fail(types.ErrRead, "connection closed before response complete")
			}
		}

	case netio.SockError:
		if d.ph == phaseReadingHeaders || d.ph == phaseReadingBody {
			d.parser.CloseWithError(ev.Err)
		}
		d.failFromPhase(ev.Err)

	case netio.SockClose:
		d.sockClosed = true
		d.maybeFinish()
	}
}

func (d *Downloader) failFromPhase(err error) {
	detail := "socket error: " + errString(err)
	switch d.ph {
	case phaseConnecting:
		d.fail(types.ErrConnect, detail)
	case phaseWritingRequest:
		d.fail(types.ErrWrite, detail)
	case phaseReadingHeaders, phaseReadingBody:
		d.fail(types.ErrRead, detail)
	default:
		d.fail(types.ErrRead, detail)
	}
}

// --- file ---

func (d *Downloader) onFileEvent(ev netio.FileEvent) {
	switch ev.Kind {
	case netio.FileOpen:
		d.fileOpened = true
		d.drainFIFOToFile()

	case netio.FileWrite:
		if len(d.bodyFIFO) > 0 {
			c := &d.bodyFIFO[0]
			c.Offset += ev.BytesWritten
			d.fileOffset += int64(ev.BytesWritten)
			if c.Remaining() == 0 {
				d.bodyFIFO = d.bodyFIFO[1:]
			}
		}
		d.maybeResumeSocket()
		d.drainFIFOToFile()
		d.maybeFinishBody()

	case netio.FileClose:
		d.fileClosed = true
		d.maybeFinish()

	case netio.FileError:
		if ev.Err != nil && isExistErr(ev.Err) {
			d.fail(types.ErrFileOpen, "file already exists")
		} else {
			d.fail(types.ErrFileWrite, "file error: "+errString(ev.Err))
		}
	}
}

// --- parser ---

func (d *Downloader) onParserEvent(ev httpwire.ResponseEvent) {
	if d.ph == phaseClosing {
		return
	}
	switch ev.Kind {
	case httpwire.RespHeaders:
		d.ph = phaseReadingBody
		d.status.Expected = ev.ContentLength
		if ev.ContentLength < 0 {
			d.status.Expected = 0
		}
		d.status.SuggestedFilename = ev.Filename
		if ev.Location != "" {
			d.redirectOnParserDone(ev.Location)
		}

	case httpwire.RespBody:
		d.clearTimer()
		d.armTimer()
		d.onBodyBytes(ev.Data)

	case httpwire.RespDone:
		d.parserDone = true
		d.clearTimer()
		d.maybeFinishBody()

	case httpwire.RespError:
		d.fail(types.ErrParse, "parse error: "+errString(ev.Err))
	}
}

func (d *Downloader) redirectOnParserDone(target string) {
	d.redirectPending = target
}

func (d *Downloader) onBodyBytes(data []byte) {
	d.bodyFIFO = append(d.bodyFIFO, types.DataChunk{Data: data, Length: len(data)})
	d.status.Downloaded += int64(len(data))

	// S5: with backlog=4, five arrivals fill the FIFO past capacity on
	// the 5th, which is the one that triggers stop().
	if len(d.bodyFIFO) > d.backlog && !d.socketPaused {
		d.socketPaused = true
		d.sock.Stop()
	}

	if !d.fileOpened && d.file == nil {
		d.file = netio.NewFile()
		d.fileEvents = d.file.Events()
		d.file.Open(d.task.Filename)
		return
	}
	d.drainFIFOToFile()
}

// drainFIFOToFile submits the head-of-FIFO chunk for writing if the
// file is open and no write is already outstanding for it (offset
// advances are driven one-at-a-time by FileWriteEvent).
func (d *Downloader) drainFIFOToFile() {
	if !d.fileOpened || len(d.bodyFIFO) == 0 {
		return
	}
	c := &d.bodyFIFO[0]
	if c.Remaining() == 0 {
		return
	}
	if d.fileWriteInFlight {
		return
	}
	d.fileWriteInFlight = true
	d.file.Write(c.Data[c.Offset:c.Length], d.fileOffset)
}

func (d *Downloader) maybeResumeSocket() {
	d.fileWriteInFlight = false
	if d.socketPaused && len(d.bodyFIFO) <= d.backlog {
		d.socketPaused = false
		d.sock.Read()
	}
}

func (d *Downloader) maybeFinishBody() {
	if !d.parserDone || len(d.bodyFIFO) > 0 {
		return
	}
	if d.redirectPending != "" {
		d.closeFileIfOpen()
		d.enterClosing(types.StateRedirect, "redirect to "+d.redirectPending, types.ErrNone, d.redirectPending)
		return
	}
	d.closeFileIfOpen()
	d.enterClosing(types.StateDone, "", types.ErrNone, "")
}

func (d *Downloader) closeFileIfOpen() {
	if d.fileOpened && !d.fileClosed {
		d.file.Close()
	}
}

// --- teardown ---

func (d *Downloader) fail(kind types.ErrorKind, detail string) {
	d.cancelFileOp()
	d.enterClosing(types.StateFailed, detail, kind, "")
}

// cancelFileOp requests teardown of any outstanding file operation.
// d.file != nil means Open was requested, whether or not its FileOpen
// event has arrived yet — File.Cancel is safe to call while its Open
// is still in flight: it marks the handle closed synchronously so
// Open's eventual completion unlinks the file instead of leaving it
// on disk, and still emits exactly one FileClose either way. If Open
// already failed (e.g. the destination already existed), File.Cancel
// itself knows not to unlink — there is nothing on disk that this
// downloader created.
func (d *Downloader) cancelFileOp() {
	if d.file == nil || d.fileClosed {
		return
	}
	d.file.Cancel()
}

func (d *Downloader) enterClosing(final types.State, detail string, errKind types.ErrorKind, redirectTo string) {
	if d.ph == phaseClosing {
		return
	}
	d.ph = phaseClosing
	d.clearTimer()
	d.timer.Close()
	if d.resolver != nil {
		d.resolver.Cancel()
	}

	d.status.State = final
	d.status.Detail = detail
	d.status.ErrorKind = errKind
	d.status.RedirectTo = redirectTo

	d.sockPendingClose = d.sock != nil
	d.filePendingClose = d.fileOpened && !d.fileClosed

	if d.sock != nil {
		d.sock.Shutdown()
		d.sock.Close()
	}
	if final == types.StateFailed {
		d.cancelFileOp()
	} else {
		d.closeFileIfOpen()
	}

	d.maybeFinish()
}

func (d *Downloader) maybeFinish() {
	if d.ticked {
		return
	}
	if d.sockPendingClose && !d.sockClosed {
		return
	}
	if d.filePendingClose && !d.fileClosed {
		return
	}
	d.ticked = true
	d.terminal = true
	if d.onTick != nil {
		d.onTick(d)
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func isExistErr(err error) bool {
	return os.IsExist(err)
}
