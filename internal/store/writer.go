package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/metrics"
)

const writeTimeout = 5 * time.Second

type op struct {
	rec    Record
	delete bool
}

// Writer applies saves and deletes to a Store in submission order on a single
// goroutine. Submitting never blocks; when the queue is full the operation is
// dropped and logged.
type Writer struct {
	store   Store
	queue   chan op
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewWriter(s Store, size int, log *zap.Logger, m *metrics.Metrics) *Writer {
	if size <= 0 {
		size = 256
	}
	return &Writer{store: s, queue: make(chan op, size), log: log, metrics: m}
}

func (w *Writer) Save(rec Record) { w.enqueue(op{rec: rec}) }

func (w *Writer) Delete(code string) { w.enqueue(op{rec: Record{Code: code}, delete: true}) }

func (w *Writer) enqueue(o op) {
	select {
	case w.queue <- o:
	default:
		w.log.Warn("store queue full, dropping write",
			zap.String("session", o.rec.Code), zap.Bool("delete", o.delete))
		w.metrics.PersistFailed()
	}
}

// Run processes writes until ctx is done, then drains whatever is still
// queued before returning.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case o := <-w.queue:
			w.apply(o)
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case o := <-w.queue:
			w.apply(o)
		default:
			return
		}
	}
}

func (w *Writer) apply(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if o.delete {
		err = w.store.Delete(ctx, o.rec.Code)
	} else {
		err = w.store.Save(ctx, o.rec)
	}
	if err != nil {
		w.log.Error("store write failed",
			zap.String("session", o.rec.Code), zap.Bool("delete", o.delete), zap.Error(err))
		w.metrics.PersistFailed()
	}
}
