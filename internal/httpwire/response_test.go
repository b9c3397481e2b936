package httpwire

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReq(t *testing.T, rawurl string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawurl, nil)
	require.NoError(t, err)
	return req
}

func TestResponseParser_HeadersAndBody(t *testing.T) {
	p := NewResponseParser(newReq(t, "http://example.com/file.bin"))
	p.Start()

	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	go func() {
		p.Feed([]byte(raw))
		p.CloseWithEOF()
	}()

	var headers ResponseEvent
	var body []byte
	for {
		select {
		case ev := <-p.Events():
			switch ev.Kind {
			case RespHeaders:
				headers = ev
			case RespBody:
				body = append(body, ev.Data...)
			case RespDone:
				assert.Equal(t, 200, headers.StatusCode)
				assert.Equal(t, int64(5), headers.ContentLength)
				assert.Equal(t, "hello", string(body))
				return
			case RespError:
				t.Fatalf("unexpected error: %v", ev.Err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for parse to finish")
		}
	}
}

func TestResponseParser_ContentDispositionFilename(t *testing.T) {
	p := NewResponseParser(newReq(t, "http://example.com/download"))
	p.Start()

	raw := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Disposition: attachment; filename=\"report.pdf\"\r\n\r\nok"
	go func() {
		p.Feed([]byte(raw))
		p.CloseWithEOF()
	}()

	for {
		select {
		case ev := <-p.Events():
			if ev.Kind == RespHeaders {
				assert.Equal(t, "report.pdf", ev.Filename)
			}
			if ev.Kind == RespDone {
				return
			}
			if ev.Kind == RespError {
				t.Fatalf("unexpected error: %v", ev.Err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for parse to finish")
		}
	}
}

func TestResponseParser_Redirect(t *testing.T) {
	p := NewResponseParser(newReq(t, "http://example.com/old"))
	p.Start()

	raw := "HTTP/1.1 302 Found\r\nLocation: /new\r\nContent-Length: 0\r\n\r\n"
	go p.Feed([]byte(raw))

	for {
		select {
		case ev := <-p.Events():
			if ev.Kind == RespHeaders {
				assert.Equal(t, "http://example.com/new", ev.Location)
			}
			if ev.Kind == RespDone {
				return
			}
			if ev.Kind == RespError {
				t.Fatalf("unexpected error: %v", ev.Err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for redirect parse")
		}
	}
}

func TestResponseParser_TruncatedBodyIsError(t *testing.T) {
	p := NewResponseParser(newReq(t, "http://example.com/file.bin"))
	p.Start()

	raw := "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nhello"
	go func() {
		p.Feed([]byte(raw))
		p.CloseWithEOF()
	}()

	for {
		select {
		case ev := <-p.Events():
			if ev.Kind == RespError {
				return
			}
			if ev.Kind == RespDone {
				t.Fatal("expected an error for a short body, got RespDone")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for error")
		}
	}
}
