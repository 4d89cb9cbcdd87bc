package memory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
)

func mustCreateBatch(id, product string, mass int64, shipped time.Time) *entities.Batch {
	batch, err := entities.NewBatch(
		entities.BatchID(id),
		entities.ProductID(product),
		decimal.NewFromInt(mass),
		decimal.Zero,
		shipped,
		"Mill A",
		map[entities.ClientID]bool{"1001": true},
	)
	if err != nil {
		panic(err)
	}
	return batch
}

func TestBatchRepository_SaveBatch(t *testing.T) {
	repo := NewBatchRepository()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveBatch(mustCreateBatch("B2", "PA", 10, now)))
	require.NoError(t, repo.SaveBatch(mustCreateBatch("B1", "PA", 12, now.Add(-48*time.Hour))))

	got, err := repo.GetBatch("B1")
	require.NoError(t, err)
	assert.True(t, got.Mass.Equal(decimal.NewFromInt(12)))
	assert.True(t, got.SellableTo("1001"))

	_, err = repo.GetBatch("MISSING")
	assert.EqualError(t, err, "batch not found: MISSING")

	err = repo.SaveBatch(mustCreateBatch("B1", "PA", 1, now))
	assert.EqualError(t, err, "batch with id B1 already exists")
}

func TestBatchRepository_Ordering(t *testing.T) {
	repo := NewBatchRepository()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.LoadBatches([]*entities.Batch{
		mustCreateBatch("C", "PA", 1, now),
		mustCreateBatch("A", "PB", 1, now),
		mustCreateBatch("B", "PA", 1, now.Add(-time.Hour)),
	}))

	all, err := repo.GetAllBatches()
	require.NoError(t, err)
	ids := make([]entities.BatchID, len(all))
	for i, b := range all {
		ids[i] = b.ID
	}
	assert.Equal(t, []entities.BatchID{"A", "B", "C"}, ids)

	pa, err := repo.GetBatchesByProduct("PA")
	require.NoError(t, err)
	require.Len(t, pa, 2)
	assert.Equal(t, entities.BatchID("B"), pa[0].ID, "oldest shipment first")
}

func TestRequestRepository(t *testing.T) {
	repo := NewRequestRepository()
	for _, c := range []entities.ClientID{"1001", "1002", "1001"} {
		req, err := entities.NewRequest(c, "Mill A", "PA", decimal.NewFromInt(5))
		require.NoError(t, err)
		require.NoError(t, repo.SaveRequest(req))
	}

	all, err := repo.GetRequests()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := repo.GetRequestsByClient("1001")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assert.Error(t, repo.SaveRequest(nil))
}

func TestPriorityRepository(t *testing.T) {
	repo := NewPriorityRepository()
	require.NoError(t, repo.LoadPriorities([]*entities.Priority{
		{Client: "1001", Importance: 1},
		{Client: "1001", Importance: 4},
	}))

	rows, err := repo.GetPriorities()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 4.0, rows[1].Importance, "rows keep load order")

	assert.EqualError(t, repo.SavePriority(&entities.Priority{}), "priority client cannot be empty")
}
