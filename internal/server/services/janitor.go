package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/repositories/repomanager"
)

const janitorBatch = 100

// MediaJanitor retries releases of superseded blobs that failed at the time
// they were replaced.
type MediaJanitor struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       BlobStore
	logger      logging.Logger
}

func NewMediaJanitor(db *sql.DB, m repomanager.RepositoryManager, store BlobStore, logger logging.Logger) *MediaJanitor {
	return &MediaJanitor{db: db, repomanager: m, store: store, logger: logger}
}

// Sweep makes one pass over the pending releases and returns how many
// were released.
func (j *MediaJanitor) Sweep(ctx context.Context) (int, error) {
	repo := j.repomanager.Releases(j.db)

	due, err := repo.Due(ctx, janitorBatch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, p := range due {
		if err := j.store.Release(ctx, p.Key); err != nil {
			j.logger.Warn(ctx, "media release retry failed", "key", p.Key, "attempts", p.Attempts+1, "error", err)
			if ferr := repo.Failed(ctx, p.ID, err.Error()); ferr != nil {
				return released, ferr
			}
			continue
		}
		if err := repo.Done(ctx, p.ID); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

type janitorTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t timeTicker) Stop()               { t.ticker.Stop() }

// StartMediaJanitor sweeps every interval until ctx ends or the returned
// stop function is called. stop waits for an in-flight sweep.
func StartMediaJanitor(ctx context.Context, j *MediaJanitor, interval time.Duration) func() {
	return startMediaJanitorWithTicker(ctx, j, interval, func(d time.Duration) janitorTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startMediaJanitorWithTicker(ctx context.Context, j *MediaJanitor, interval time.Duration, newTicker func(time.Duration) janitorTicker) func() {
	if j == nil || interval <= 0 {
		return func() {}
	}

	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})

	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				n, err := j.Sweep(workerCtx)
				if err != nil {
					j.logger.Error(workerCtx, "media janitor sweep failed", "error", err)
				} else if n > 0 {
					j.logger.Info(workerCtx, "media janitor released blobs", "count", n)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
