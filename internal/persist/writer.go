package persist

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

var ErrQueueFull = errors.New("write-behind queue is full")

type opKind int

const (
	opPut opKind = iota
	opDelete
)

type op struct {
	kind      opKind
	canonical string
	rec       Record
}

// Writer drains store mutations to the backend asynchronously. A full queue
// never blocks the store: the write is dropped and reported through onDrop,
// leaving that entry memory-only.
type Writer struct {
	ctx     context.Context
	backend Backend
	ch      chan op
	onDrop  func(canonical string, err error)
	done    chan struct{}
}

func NewWriter(ctx context.Context, backend Backend, queueSize int, onDrop func(canonical string, err error)) *Writer {
	if onDrop == nil {
		onDrop = func(string, error) {}
	}
	w := &Writer{
		ctx:     ctx,
		backend: backend,
		ch:      make(chan op, queueSize),
		onDrop:  onDrop,
		done:    make(chan struct{}),
	}
	go w.drain()
	return w
}

// Put enqueues a write-behind upsert. Returns false when the queue is full.
func (w *Writer) Put(canonical string, rec Record) bool {
	select {
	case w.ch <- op{kind: opPut, canonical: canonical, rec: rec}:
		return true
	default:
		w.onDrop(canonical, ErrQueueFull)
		return false
	}
}

// Delete enqueues a write-behind delete. Returns false when the queue is full.
func (w *Writer) Delete(canonical string) bool {
	select {
	case w.ch <- op{kind: opDelete, canonical: canonical}:
		return true
	default:
		w.onDrop(canonical, ErrQueueFull)
		return false
	}
}

func (w *Writer) drain() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			w.flush()
			return
		case o := <-w.ch:
			w.apply(w.ctx, o)
		}
	}
}

// flush applies whatever is still buffered at shutdown so a clean Close does
// not lose accepted writes.
func (w *Writer) flush() {
	for {
		select {
		case o := <-w.ch:
			w.apply(context.Background(), o)
		default:
			return
		}
	}
}

func (w *Writer) apply(ctx context.Context, o op) {
	var err error
	switch o.kind {
	case opPut:
		err = w.backend.Put(ctx, o.canonical, o.rec)
	case opDelete:
		err = w.backend.Delete(ctx, o.canonical)
	}
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("key", o.canonical).Msg("[persist] write-behind failed")
		w.onDrop(o.canonical, err)
	}
}

// Wait blocks until the drain goroutine exits (after ctx cancellation).
func (w *Writer) Wait() {
	<-w.done
}
