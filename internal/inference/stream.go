package inference

import (
	"io"
	"net/http"
	"sync"
)

// StreamFunc receives each accepted token's text, in generation order, on
// the generating goroutine.
type StreamFunc func(fragment string)

// ChannelStream adapts generation output to a channel. The channel is
// buffered to capacity so a generation of at most capacity tokens never
// blocks on a slow reader. Call the returned close function once the
// generating call has returned; it is safe to call more than once.
func ChannelStream(capacity int) (StreamFunc, <-chan string, func()) {
	if capacity <= 0 {
		capacity = DefaultMaxNewTokens
	}
	ch := make(chan string, capacity)
	var once sync.Once
	send := func(fragment string) { ch <- fragment }
	return send, ch, func() { once.Do(func() { close(ch) }) }
}

// WriterStream writes every fragment to w and flushes it when w supports
// flushing. Write errors are reported to onErr, if set, and otherwise
// ignored so a broken sink never aborts generation.
func WriterStream(w io.Writer, onErr func(error)) StreamFunc {
	return func(fragment string) {
		if _, err := io.WriteString(w, fragment); err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		switch f := w.(type) {
		case http.Flusher:
			f.Flush()
		case interface{ Flush() error }:
			if err := f.Flush(); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

// Tee fans a fragment out to several streams in order. Nil entries are
// skipped.
func Tee(streams ...StreamFunc) StreamFunc {
	return func(fragment string) {
		for _, s := range streams {
			if s != nil {
				s(fragment)
			}
		}
	}
}
