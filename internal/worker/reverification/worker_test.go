package reverification

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/worker/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAges keeps due records in memory and removes them once marked.
type fakeAges struct {
	mu      sync.Mutex
	due     []*types.AgeVerification
	marked  []string
	failFor map[string]bool
	listErr error
}

func (f *fakeAges) ListDueForReverification(_ context.Context, _ time.Time, limit int) ([]*types.AgeVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	n := min(limit, len(f.due))
	return slices.Clone(f.due[:n]), nil
}

func (f *fakeAges) MarkForReverification(_ context.Context, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFor[userID] {
		return errors.New("boom")
	}

	f.marked = append(f.marked, userID)
	f.due = slices.DeleteFunc(f.due, func(v *types.AgeVerification) bool { return v.UserID == userID })
	return nil
}

func dueRecords(n int) []*types.AgeVerification {
	records := make([]*types.AgeVerification, n)
	for i := range records {
		records[i] = &types.AgeVerification{UserID: fmt.Sprintf("user-%d", i)}
	}
	return records
}

func newWorker(ages Ages, batchSize int) *Worker {
	logger := zap.NewNop()
	return New(ages, core.NewStatusReporter(nil, WorkerType, logger), Options{
		BatchSize:   batchSize,
		Concurrency: 4,
	}, logger)
}

func TestRunOnceDrainsAllBatches(t *testing.T) {
	t.Parallel()

	ages := &fakeAges{due: dueRecords(25)}
	w := newWorker(ages, 10)

	count, err := w.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 25, count)
	assert.Len(t, ages.marked, 25)
	assert.Empty(t, ages.due)

	status := w.reporter.Snapshot()
	assert.Equal(t, int64(25), status.Processed)
	assert.True(t, status.IsHealthy)
}

func TestRunOnceSkipsFailures(t *testing.T) {
	t.Parallel()

	ages := &fakeAges{due: dueRecords(3), failFor: map[string]bool{"user-1": true}}
	w := newWorker(ages, 10)

	count, err := w.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"user-0", "user-2"}, ages.marked)
}

func TestRunOnceStopsWhenNothingProgresses(t *testing.T) {
	t.Parallel()

	// A full batch that fails entirely must not loop forever.
	ages := &fakeAges{due: dueRecords(2), failFor: map[string]bool{"user-0": true, "user-1": true}}
	w := newWorker(ages, 2)

	count, err := w.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunOnceListError(t *testing.T) {
	t.Parallel()

	ages := &fakeAges{listErr: errors.New("db down")}
	w := newWorker(ages, 10)

	_, err := w.RunOnce(t.Context())
	require.Error(t, err)
	assert.False(t, w.reporter.Snapshot().IsHealthy)
}

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	ages := &fakeAges{due: dueRecords(1)}
	w := newWorker(ages, 10)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		ages.mu.Lock()
		defer ages.mu.Unlock()
		return len(ages.marked) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
