package log

import (
	"errors"
	"io"
)

// MultiWriter fans one log line out to every output. A failing output does
// not stop the others.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0, 3)}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

// Len returns the number of outputs.
func (m *MultiWriter) Len() int { return len(m.writers) }

// Close closes every output that is an io.Closer except stdout and stderr.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if c, ok := w.(io.Closer); ok && !isStdStream(w) {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
