package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	backlog int64
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) PrunePublished(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	n := min(f.backlog, int64(limit))
	f.backlog -= n
	return n, nil
}

func newRetentionJob(t *testing.T, pruner *fakePruner, batch int) *retentionJob {
	t.Helper()
	job, err := NewRetentionJob(RetentionJobParams{Logger: testLogger(), Pruner: pruner, Batch: batch})
	require.NoError(t, err)
	return job.(*retentionJob)
}

func TestRetentionJobDrainsBacklogInBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{backlog: 25}
	job := newRetentionJob(t, pruner, 10)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, pruner.cutoffs, 3)
	assert.Zero(t, pruner.backlog)
	for _, cutoff := range pruner.cutoffs {
		assert.Equal(t, now.Add(-defaultRetention), cutoff)
	}
}

func TestRetentionJobStopsAfterMaxRounds(t *testing.T) {
	pruner := &fakePruner{backlog: 1000}
	job := newRetentionJob(t, pruner, 10)

	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, pruner.cutoffs, maxPruneRounds)
	assert.EqualValues(t, 1000-10*maxPruneRounds, pruner.backlog)
}

func TestRetentionJobPropagatesError(t *testing.T) {
	job := newRetentionJob(t, &fakePruner{err: errors.New("boom")}, 0)
	assert.EqualError(t, job.Run(context.Background()), "boom")
}

func TestNewRetentionJobRequiresPruner(t *testing.T) {
	_, err := NewRetentionJob(RetentionJobParams{Logger: testLogger()})
	assert.Error(t, err)
}
