package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// asyncWriter fans log lines out to every sink from a single goroutine.
// Lines are buffered and sinks are flushed once the queue runs dry, so a
// burst of messages costs one write per sink instead of one per line.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}
	once     sync.Once
	sinks    []*bufio.Writer
	writeErr atomic.Pointer[error]
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, 1024),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, w := range writers {
		if w != nil {
			aw.sinks = append(aw.sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case data, ok := <-w.queue:
			if !ok {
				w.fail(w.flushAll())
				return
			}
			w.fail(w.buffer(data))
			if len(w.queue) == 0 {
				w.fail(w.flushAll())
			}
		case ack := <-w.flushReq:
			ack <- w.drain()
		}
	}
}

// drain buffers everything already queued and flushes the sinks.
func (w *asyncWriter) drain() error {
	for {
		select {
		case data, ok := <-w.queue:
			if !ok {
				return w.flushAll()
			}
			w.fail(w.buffer(data))
		default:
			return w.flushAll()
		}
	}
}

// Write copies p and queues it. A full queue blocks rather than dropping lines.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	data := make([]byte, len(p))
	copy(data, p)
	w.queue <- data
	return nil
}

// Flush blocks until every line queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.err()
	}
}

// Close drains the queue and reports the first write error seen.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.queue) })
	<-w.done
	return w.err()
}

func (w *asyncWriter) buffer(p []byte) error {
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushAll() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	if p := w.writeErr.Load(); p != nil {
		return *p
	}
	return nil
}

// fail records the first non-nil error.
func (w *asyncWriter) fail(err error) {
	if err != nil {
		w.writeErr.CompareAndSwap(nil, &err)
	}
}
