package httpwire

import (
	"bufio"
	"io"
	"net/http"
	"sync"

	"github.com/vfaronov/httpheader"
)

// ResponseEventKind distinguishes events a ResponseParser emits.
type ResponseEventKind int

const (
	RespHeaders ResponseEventKind = iota
	RespBody
	RespDone
	RespError
)

// ResponseEvent is what a ResponseParser sends on its channel.
type ResponseEvent struct {
	Kind          ResponseEventKind
	StatusCode    int
	ContentLength int64
	Location      string // absolute redirect target, resolved; "" if not a redirect
	Filename      string // Content-Disposition filename, if present
	Data          []byte
	Err           error
}

// ResponseParser wraps net/http's header and chunked-body framing
// (component E is "external" — the delegated parser) behind an
// event-channel interface so the Downloader state machine can feed it
// raw socket bytes as they arrive. All of the actual parsing — status
// line, headers, chunked/length-delimited body framing — is
// net/http's, not reimplemented here.
type ResponseParser struct {
	q      *byteQueue
	events chan ResponseEvent
	req    *http.Request
}

// NewResponseParser returns a ResponseParser for the response to req.
// Start must be called once before Feed.
func NewResponseParser(req *http.Request) *ResponseParser {
	return &ResponseParser{
		q:      newByteQueue(),
		events: make(chan ResponseEvent, 16),
		req:    req,
	}
}

func (p *ResponseParser) Events() <-chan ResponseEvent { return p.events }

// Start begins parsing in the background, reading from the internal
// queue that Feed supplies and CloseWithEOF/CloseWithError terminate.
func (p *ResponseParser) Start() {
	go p.run()
}

func (p *ResponseParser) run() {
	br := bufio.NewReader(p.q)
	resp, err := http.ReadResponse(br, p.req)
	if err != nil {
		p.events <- ResponseEvent{Kind: RespError, Err: err}
		return
	}
	defer resp.Body.Close()

	ev := ResponseEvent{
		Kind:          RespHeaders,
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc := resp.Header.Get("Location"); loc != "" {
			if abs, err := ResolveRedirect(p.req.URL.String(), loc); err == nil {
				ev.Location = abs
			} else {
				ev.Location = loc
			}
		}
	}
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		ev.Filename = name
	}
	p.events <- ev

	if ev.Location != "" {
		p.events <- ResponseEvent{Kind: RespDone}
		return
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.events <- ResponseEvent{Kind: RespBody, Data: chunk}
		}
		if err != nil {
			if err == io.EOF {
				p.events <- ResponseEvent{Kind: RespDone}
			} else {
				p.events <- ResponseEvent{Kind: RespError, Err: err}
			}
			return
		}
	}
}

// Feed supplies raw bytes read off the socket. It never blocks — data
// is appended to an internal queue the parser goroutine drains — so a
// Downloader can call Feed directly from its own event-loop goroutine
// without risking a deadlock against resp.Body's decoding.
func (p *ResponseParser) Feed(data []byte) error {
	return p.q.appendRaw(data)
}

// CloseWithEOF signals the peer half-closed (EndEvent from the
// socket) — any parse still in progress completes or fails now.
func (p *ResponseParser) CloseWithEOF() {
	p.q.closeWith(io.EOF)
}

// CloseWithError aborts the parse, e.g. on a socket ErrorEvent.
func (p *ResponseParser) CloseWithError(err error) {
	p.q.closeWith(err)
}

// byteQueue is an io.Reader fed by non-blocking Writes, backed by a
// growing buffer and a condition variable. net/http's response
// reading always happens on its own goroutine (ResponseParser.run),
// so a plain io.Pipe's lock-step rendezvous would force Feed to block
// until that goroutine drains every byte — exactly the kind of
// blocking call a single event-loop goroutine cannot make. No queue
// type in the dependency set fits an io.Reader adapter this small, so
// this is a deliberate, narrow use of sync.Cond from the standard
// library.
type byteQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []byte
	closed   bool
	closeErr error
}

func newByteQueue() *byteQueue {
	q := &byteQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *byteQueue) appendRaw(p []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return io.ErrClosedPipe
	}
	q.buf = append(q.buf, p...)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

func (q *byteQueue) closeWith(err error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.closeErr = err
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *byteQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return 0, q.closeErr
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}
