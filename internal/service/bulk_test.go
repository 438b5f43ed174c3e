package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/notifyd/internal/models"
	"github.com/shohag/notifyd/internal/storage"
)

func bulkCreateItems(n int, invalid map[int]bool) []BulkItem {
	items := make([]BulkItem, n)
	for i := 0; i < n; i++ {
		req := CreateRequest{
			Channel:   models.ChannelEmail,
			Recipient: fmt.Sprintf("user%d@example.com", i),
			Subject:   "Welcome",
			Content:   fmt.Sprintf("Hello #%d", i),
		}
		if invalid[i] {
			req.Recipient = "not-an-email"
		}
		items[i] = BulkItem{Create: &req}
	}
	return items
}

func TestRunBulkCreateContinueOnError(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	res, err := svc.RunBulk(ctx, BulkRequest{
		Op:              BulkCreate,
		Items:           bulkCreateItems(10, map[int]bool{2: true, 5: true, 7: true}),
		ContinueOnError: true,
	})
	require.NoError(t, err, "partial failure is reported in the aggregate, never as an error")

	assert.Equal(t, 10, res.TotalCount)
	assert.Equal(t, 7, res.SuccessCount)
	assert.Equal(t, 3, res.FailureCount)
	assert.Zero(t, res.SkippedCount)
	assert.Len(t, res.Errors, 3)

	require.Len(t, res.Results, 10)
	for i, r := range res.Results {
		assert.Equal(t, i, r.Index, "results must come back in submission order")
		if i == 2 || i == 5 || i == 7 {
			assert.False(t, r.Success)
			assert.NotEmpty(t, r.Error)
		} else {
			assert.True(t, r.Success)
			assert.True(t, models.ValidID("ntf", r.EntityID))
		}
	}

	list, err := store.ListNotifications(ctx, storage.ListFilter{Limit: 20})
	require.NoError(t, err)
	assert.Len(t, list, 7)
}

func TestRunBulkAbortsBatchRemainderOnError(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	// Two batches of five. Item 1 fails, so items 2-4 of the first batch are
	// skipped; the second batch is untouched.
	res, err := svc.RunBulk(ctx, BulkRequest{
		Op:              BulkCreate,
		Items:           bulkCreateItems(10, map[int]bool{1: true}),
		BatchSize:       5,
		Concurrency:     2,
		ContinueOnError: false,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, res.TotalCount)
	assert.Equal(t, 6, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.Equal(t, 3, res.SkippedCount)

	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	for i := 2; i < 5; i++ {
		assert.True(t, res.Results[i].Skipped, "item %d should be skipped", i)
		assert.Contains(t, res.Results[i].Error, "aborted")
	}
	for i := 5; i < 10; i++ {
		assert.True(t, res.Results[i].Success, "item %d belongs to an unaffected batch", i)
	}
}

func TestRunBulkCancel(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	var items []BulkItem
	for i := 0; i < 3; i++ {
		n, err := svc.Create(ctx, welcomeEmail())
		require.NoError(t, err)
		items = append(items, BulkItem{ID: n.ID})
	}
	// One unknown id in the middle.
	items = append(items[:1], append([]BulkItem{{ID: models.NewID("ntf")}}, items[1:]...)...)

	res, err := svc.RunBulk(ctx, BulkRequest{Op: BulkCancel, Items: items, ContinueOnError: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)

	cancelled, err := store.ListNotifications(ctx, storage.ListFilter{Status: models.StatusCancelled})
	require.NoError(t, err)
	assert.Len(t, cancelled, 3)
}

func TestRunBulkRejectsInvalidOp(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.RunBulk(context.Background(), BulkRequest{
		Op:    BulkOp("purge"),
		Items: bulkCreateItems(1, nil),
	})
	require.Error(t, err)
}

func TestRunBulkRejectsOversizedRequest(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.bulk.MaxRequestItems = 3

	_, err := svc.RunBulk(context.Background(), BulkRequest{
		Op:    BulkCreate,
		Items: bulkCreateItems(4, nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 3 items")
}

func TestRunBulkDeadContextIsInfrastructureFailure(t *testing.T) {
	svc, _, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunBulk(ctx, BulkRequest{
		Op:    BulkCreate,
		Items: bulkCreateItems(2, nil),
	})
	require.Error(t, err)
}

func TestRunBulkItemRequiresBody(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	res, err := svc.RunBulk(ctx, BulkRequest{
		Op:              BulkCreate,
		Items:           []BulkItem{{}},
		ContinueOnError: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailureCount)

	res, err = svc.RunBulk(ctx, BulkRequest{
		Op:              BulkUpdate,
		Items:           []BulkItem{{ID: models.NewID("ntf")}},
		ContinueOnError: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailureCount)
}
