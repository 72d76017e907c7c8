package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/chopchop-backend/models"
)

func TestProjectionWorker_RetryDelay(t *testing.T) {
	w := NewProjectionWorker(nil)
	w.InitialRetry = time.Second
	w.MaxRetry = 5 * time.Second

	assert.Equal(t, time.Second, w.retryDelay(1))
	assert.Equal(t, 2*time.Second, w.retryDelay(2))
	assert.Equal(t, 4*time.Second, w.retryDelay(3))
	assert.Equal(t, 5*time.Second, w.retryDelay(4))
	assert.Equal(t, 5*time.Second, w.retryDelay(10))
}

func TestProjectionWorker_ReschedulesThenFails(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	w := NewProjectionWorker(store)
	w.Now = func() time.Time { return now }
	w.MaxAttempts = 2

	job := &models.ProjectionJob{
		Kind:           models.ProjectionCustomerOrder,
		OrderDocID:     "missing-doc",
		OrderRef:       "CC1",
		VendorID:       "vendor-1",
		IdempotencyKey: ProjectionKey(models.ProjectionCustomerOrder, "CC1", "vendor-1"),
		NextAttemptAt:  now,
	}
	require.NoError(t, store.EnqueueProjection(ctx, job))

	done, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, done)

	jobs, err := store.ProjectionJobs(ctx, "missing-doc")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobPending, jobs[0].Status)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.NotEmpty(t, jobs[0].LastError)
	assert.True(t, jobs[0].NextAttemptAt.Equal(now.Add(time.Second)))

	// not due yet
	done, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, done)
	jobs, _ = store.ProjectionJobs(ctx, "missing-doc")
	assert.Equal(t, 1, jobs[0].Attempts)

	now = now.Add(2 * time.Second)
	_, err = w.Drain(ctx)
	require.NoError(t, err)
	jobs, _ = store.ProjectionJobs(ctx, "missing-doc")
	assert.Equal(t, models.JobFailed, jobs[0].Status)
	assert.Equal(t, 2, jobs[0].Attempts)
}

func TestProjectionWorker_UnknownKind(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	doc, err := store.Insert(ctx, models.CollectionOrders, map[string]interface{}{"orderId": "CC2"})
	require.NoError(t, err)

	w := NewProjectionWorker(store)
	w.MaxAttempts = 1
	require.NoError(t, store.EnqueueProjection(ctx, &models.ProjectionJob{
		Kind:           "mystery",
		OrderDocID:     doc.ID,
		OrderRef:       "CC2",
		VendorID:       "vendor-1",
		IdempotencyKey: ProjectionKey("mystery", "CC2", "vendor-1"),
	}))

	_, err = w.Drain(ctx)
	require.NoError(t, err)

	jobs, err := store.ProjectionJobs(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobFailed, jobs[0].Status)
	assert.Contains(t, jobs[0].LastError, "mystery")
}
