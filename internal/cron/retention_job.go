package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	defaultRetention  = 7 * 24 * time.Hour
	defaultPruneBatch = 500
	// maxPruneRounds caps one run so a large backlog drains over several
	// cycles instead of holding the cron lock.
	maxPruneRounds = 20
)

// PublishedPruner deletes delivered outbox rows in bounded batches.
type PublishedPruner interface {
	PrunePublished(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type RetentionJobParams struct {
	Logger    *logger.Logger
	Pruner    PublishedPruner
	Retention time.Duration
	Batch     int
}

type retentionJob struct {
	logg      *logger.Logger
	pruner    PublishedPruner
	retention time.Duration
	batch     int
	now       func() time.Time
}

// NewRetentionJob builds the job that drops outbox rows delivered longer
// than Retention ago.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("retention job: logger required")
	case params.Pruner == nil:
		return nil, errors.New("retention job: pruner required")
	}
	job := &retentionJob{
		logg:      params.Logger,
		pruner:    params.Pruner,
		retention: params.Retention,
		batch:     params.Batch,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultRetention
	}
	if job.batch <= 0 {
		job.batch = defaultPruneBatch
	}
	return job, nil
}

func (j *retentionJob) Name() string { return "outbox-retention" }

func (j *retentionJob) Every() time.Duration { return time.Hour }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	defer func() {
		if total > 0 {
			j.logg.Info(j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "rows_deleted": total}), "outbox rows pruned")
		}
	}()

	for round := 0; round < maxPruneRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := j.pruner.PrunePublished(ctx, cutoff, j.batch)
		total += n
		if err != nil {
			return err
		}
		if n < int64(j.batch) {
			return nil
		}
	}
	return nil
}
