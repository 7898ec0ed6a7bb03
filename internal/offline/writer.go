package offline

import (
	"bufio"
	"fmt"
	"io"
)

// Writer appends encoded messages to a stream, one per line.
type Writer struct {
	w     *bufio.Writer
	count int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(msg Object) error {
	if w == nil || w.w == nil {
		return fmt.Errorf("message writer not initialized")
	}
	line, err := Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count is the number of messages written so far.
func (w *Writer) Count() int {
	if w == nil {
		return 0
	}
	return w.count
}

func (w *Writer) Flush() error {
	if w == nil || w.w == nil {
		return nil
	}
	return w.w.Flush()
}
