package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/docstore"
	"github.com/stemsi/exstem-portal/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// eventQueue is the part of ViolationQueue the worker consumes.
type eventQueue interface {
	Pop(ctx context.Context, timeout time.Duration) (*model.ViolationEvent, error)
	Requeue(ctx context.Context, events []model.ViolationEvent) error
}

// ViolationWorker drains the violation queue into the violation_events collection.
type ViolationWorker struct {
	store   docstore.Store
	queue   eventQueue
	log     zerolog.Logger
	backoff time.Duration
}

func NewViolationWorker(store docstore.Store, queue *ViolationQueue, log zerolog.Logger) *ViolationWorker {
	return newViolationWorker(store, queue, log)
}

func newViolationWorker(store docstore.Store, queue eventQueue, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		store:   store,
		queue:   queue,
		log:     log.With().Str("component", "violation_worker").Logger(),
		backoff: 2 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]model.ViolationEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch. Pop blocks for PollTimeout and returns at once if data exists.
		ev, err := w.queue.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, ErrMalformedPayload) {
				// Cannot be retried. Log and discard.
				w.log.Error().Err(err).Msg("Discarding malformed violation event")
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, 3*time.Second)
			continue
		}
		if ev == nil {
			continue
		}

		buffer = append(buffer, *ev)
	}
}

// flushSafe tries the bulk path, then row by row, then requeues what still failed.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ViolationEvent) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Violation events persisted")
}

var errNoBulkPath = errors.New("store has no bulk insert")

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []model.ViolationEvent) error {
	bulk, ok := w.store.(docstore.BulkCreator)
	if !ok {
		return errNoBulkPath
	}

	rows := make([]docstore.Record, 0, len(batch))
	for _, ev := range batch {
		rec, err := docstore.Encode(ev)
		if err != nil {
			return err
		}
		rows = append(rows, rec)
	}
	return bulk.BulkCreate(ctx, docstore.ViolationEvents, rows)
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.ViolationEvent) {
	var requeue []model.ViolationEvent

	for _, ev := range batch {
		rec, err := docstore.Encode(ev)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", ev.Attempt.ID()).Msg("Dropping unencodable violation event")
			continue
		}

		_, err = w.store.Create(ctx, docstore.ViolationEvents, rec)
		switch {
		case err == nil:
		case errors.Is(err, docstore.ErrConflict):
			// Stored by the failed bulk attempt already.
		default:
			w.log.Error().Err(err).Str("attempt_id", ev.Attempt.ID()).Msg("Insert failed, requeueing")
			requeue = append(requeue, ev)
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []model.ViolationEvent) {
	if err := w.queue.Requeue(context.WithoutCancel(ctx), items); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue violation events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the store is down.
	sleep(ctx, w.backoff)
}

func (w *ViolationWorker) shutdown(buffer []model.ViolationEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
