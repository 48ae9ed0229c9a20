package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter writes answer events as server-sent events. Each event is
// flushed before the writer returns so fragments reach the client in order
// while generation continues.
type SSEStreamWriter struct {
	w            io.Writer
	flusher      func()
	rc           *http.ResponseController
	writeTimeout time.Duration
	seq          int
	err          error
}

func NewSSEStreamWriter(c *echo.Context, writeTimeout time.Duration) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	return &SSEStreamWriter{
		w:            res,
		flusher:      flusher.Flush,
		rc:           http.NewResponseController(res),
		writeTimeout: writeTimeout,
		seq:          1,
	}, nil
}

func (s *SSEStreamWriter) Begin(a Answer) error {
	a.Status = statusInProgress
	return s.send(streamEvent{Type: "answer.created", Answer: &a})
}

// EmitDelta sends one fragment. After the first write failure later
// fragments are dropped; the client has gone and generation should not be
// held up by it.
func (s *SSEStreamWriter) EmitDelta(delta string) {
	if s.err != nil {
		return
	}
	s.err = s.send(streamEvent{Type: "answer.delta", Delta: delta})
}

// Err reports the first write failure, if any.
func (s *SSEStreamWriter) Err() error {
	return s.err
}

func (s *SSEStreamWriter) Complete(a Answer) error {
	a.Status = statusCompleted
	return s.send(streamEvent{Type: "answer.completed", Answer: &a})
}

func (s *SSEStreamWriter) Failed(a Answer, err error) error {
	a.Status = statusFailed
	if a.Error == nil {
		_, typ := errorStatus(err)
		a.Error = &ResponseError{Message: err.Error(), Type: typ}
	}
	return s.send(streamEvent{Type: "answer.failed", Answer: &a})
}

func (s *SSEStreamWriter) send(ev streamEvent) error {
	ev.SequenceNumber = s.seq
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if s.writeTimeout > 0 && s.rc != nil {
		// Not every writer supports deadlines; httptest recorders do not.
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
		return err
	}
	s.flush()
	s.seq++
	return nil
}

func (s *SSEStreamWriter) flush() {
	if s.flusher != nil {
		s.flusher()
	}
}
