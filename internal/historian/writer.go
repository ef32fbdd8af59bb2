package historian

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/san-kum/looptune/internal/dynamo"
)

var (
	ErrQueueFull    = errors.New("historian writer queue full")
	ErrWriterClosed = errors.New("historian writer closed")
)

type WriterOptions struct {
	BatchSize int
	QueueSize int
	// IdleFlush writes a partial batch after this long without new samples.
	IdleFlush time.Duration
}

func DefaultWriterOptions() WriterOptions {
	return WriterOptions{BatchSize: 200, QueueSize: 10000, IdleFlush: time.Second}
}

// Writer queues samples and inserts them in batches from one goroutine.
// Write never blocks; a full queue drops the sample and returns
// ErrQueueFull.
type Writer struct {
	db      *DB
	session int64
	opts    WriterOptions
	log     *slog.Logger

	queue chan Row
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	written int
	dropped int
	lastErr error
}

func (h *DB) NewWriter(session int64, opts WriterOptions) *Writer {
	def := DefaultWriterOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.IdleFlush <= 0 {
		opts.IdleFlush = def.IdleFlush
	}
	w := &Writer{
		db:      h,
		session: session,
		opts:    opts,
		log:     h.log.With(slog.String("component", "historian.writer"), slog.Int64("session", session)),
		queue:   make(chan Row, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) Write(tag string, s dynamo.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.queue <- Row{Tag: tag, Sample: s}:
		return nil
	default:
		w.dropped++
		return ErrQueueFull
	}
}

// Close flushes everything queued and stops the goroutine. It returns the
// last insert error, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return w.Err()
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	return w.Err()
}

// Stats reports rows inserted and rows dropped on a full queue.
func (w *Writer) Stats() (written, dropped int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.dropped
}

func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Writer) run() {
	defer close(w.done)
	batch := make([]Row, 0, w.opts.BatchSize)
	idle := time.NewTimer(w.opts.IdleFlush)
	defer idle.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := w.db.WriteRows(context.Background(), w.session, batch)
		w.mu.Lock()
		if err != nil {
			w.lastErr = err
		} else {
			w.written += len(batch)
		}
		w.mu.Unlock()
		if err != nil {
			w.log.Error("batch insert failed", slog.Int("rows", len(batch)), slog.Any("error", err))
		} else {
			w.log.Debug("flushed batch", slog.Int("rows", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-w.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(w.opts.IdleFlush)
		case <-idle.C:
			flush()
			idle.Reset(w.opts.IdleFlush)
		}
	}
}
