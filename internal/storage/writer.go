package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RunWriter buffers completed runs and writes them to the audit table
// off the request path. Serve mode uses it so a slow or flapping
// database never delays a remediation response.
type RunWriter struct {
	db   *DB
	ch   chan *Run
	wg   sync.WaitGroup
	done chan struct{}
}

func NewRunWriter(db *DB, bufferSize int) *RunWriter {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	return &RunWriter{
		db:   db,
		ch:   make(chan *Run, bufferSize),
		done: make(chan struct{}),
	}
}

func (w *RunWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

func (w *RunWriter) Log(run *Run) {
	select {
	case w.ch <- run:
	default:
		log.Warn().Str("run_id", run.ID).Msg("audit buffer full, dropping run record")
	}
}

func (w *RunWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("run writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("run writer flush timed out")
	}
}

func (w *RunWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case run := <-w.ch:
			w.writeWithRetry(run)
		case <-w.done:
			// Drain remaining entries
			for {
				select {
				case run := <-w.ch:
					w.writeWithRetry(run)
				default:
					return
				}
			}
		}
	}
}

func (w *RunWriter) writeWithRetry(run *Run) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.db.InsertRun(ctx, run)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			log.Warn().
				Err(err).
				Str("run_id", run.ID).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("audit write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("run_id", run.ID).
				Msg("audit write failed permanently after retries")
		}
	}
}
