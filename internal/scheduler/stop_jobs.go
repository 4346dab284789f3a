package scheduler

import (
	"context"
	"time"

	"github.com/aristath/riskengine/internal/modules/stoploss"
	"github.com/rs/zerolog"
)

// ReevaluateStopsJob re-checks every tracked stop against its last seen price
type ReevaluateStopsJob struct {
	book *stoploss.Book
	log  zerolog.Logger
}

// NewReevaluateStopsJob creates a new ReevaluateStopsJob
func NewReevaluateStopsJob(book *stoploss.Book, log zerolog.Logger) *ReevaluateStopsJob {
	return &ReevaluateStopsJob{
		book: book,
		log:  log.With().Str("job", "reevaluate_stops").Logger(),
	}
}

// Name returns the job name
func (j *ReevaluateStopsJob) Name() string {
	return "reevaluate_stops"
}

// Run executes the re-evaluation
func (j *ReevaluateStopsJob) Run() error {
	hits := j.book.Reevaluate()
	if len(hits) > 0 {
		j.log.Info().Int("triggered", len(hits)).Msg("Stops triggered on re-evaluation")
	}
	return nil
}

// SnapshotStopsJob persists the stop book and prunes old snapshots
type SnapshotStopsJob struct {
	book    *stoploss.Book
	store   *stoploss.SnapshotStore
	keep    int
	timeout time.Duration
	log     zerolog.Logger
}

// NewSnapshotStopsJob creates a new SnapshotStopsJob that retains the newest keep snapshots.
func NewSnapshotStopsJob(book *stoploss.Book, store *stoploss.SnapshotStore, keep int, log zerolog.Logger) *SnapshotStopsJob {
	return &SnapshotStopsJob{
		book:    book,
		store:   store,
		keep:    keep,
		timeout: 10 * time.Second,
		log:     log.With().Str("job", "snapshot_stops").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotStopsJob) Name() string {
	return "snapshot_stops"
}

// Run executes the snapshot
func (j *SnapshotStopsJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	count, err := stoploss.SaveBook(ctx, j.store, j.book)
	if err != nil {
		return err
	}

	pruned, err := j.store.Prune(ctx, j.keep)
	if err != nil {
		return err
	}

	j.log.Debug().
		Int("stops", count).
		Int64("pruned", pruned).
		Msg("Stop snapshot saved")

	return nil
}
