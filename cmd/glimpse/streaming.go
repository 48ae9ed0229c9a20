package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

type StreamMode string

const (
	StreamInstant    StreamMode = "instant"
	StreamTypewriter StreamMode = "typewriter"
	StreamQuiet      StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case StreamInstant, StreamTypewriter, StreamQuiet:
		return m, nil
	case "":
		return StreamInstant, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (instant, typewriter, quiet)", s)
	}
}

// StreamWriter prints answer fragments as they are generated.
type StreamWriter struct {
	mode   StreamMode
	output io.Writer
	buffer *bufio.Writer

	mu          sync.Mutex
	accumulator strings.Builder

	// rawOutput escapes control characters so the answer stays on one line.
	rawOutput bool
}

func NewStreamWriter(w io.Writer, mode StreamMode, rawOutput bool) *StreamWriter {
	return &StreamWriter{
		mode:      mode,
		output:    w,
		buffer:    bufio.NewWriterSize(w, 4096),
		rawOutput: rawOutput,
	}
}

// Write handles one fragment. It matches inference.StreamFunc.
func (w *StreamWriter) Write(fragment string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accumulator.WriteString(fragment)

	switch w.mode {
	case StreamInstant:
		_, _ = w.buffer.WriteString(w.escape(fragment))
		_ = w.buffer.Flush()
	case StreamTypewriter:
		for _, r := range fragment {
			_, _ = w.buffer.WriteString(w.escape(string(r)))
			_ = w.buffer.Flush()
		}
	case StreamQuiet:
	}
}

// Finish prints the final answer in quiet mode and terminates the line.
// Streamed modes have already printed every fragment, so only the newline
// is added; the trimmed answer is printed only when nothing was streamed.
func (w *StreamWriter) Finish(answer string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mode == StreamQuiet {
		_, _ = w.buffer.WriteString(w.escape(answer))
	}
	_, _ = w.buffer.WriteString("\n")
	_ = w.buffer.Flush()
}

// Text returns everything streamed so far.
func (w *StreamWriter) Text() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.accumulator.String()
}

func (w *StreamWriter) escape(s string) string {
	if !w.rawOutput {
		return s
	}
	return escapeRawOutput(s)
}

func escapeRawOutput(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteString(escapeRawOutputRune(r))
	}
	return b.String()
}

func escapeRawOutputRune(r rune) string {
	switch r {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	case '\\':
		return `\\`
	default:
		if strconv.IsPrint(r) {
			return string(r)
		}
		return fmt.Sprintf(`\u%04x`, r)
	}
}
