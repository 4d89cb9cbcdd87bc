package tables

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vsinha/batchalloc/pkg/domain/entities"
	testhelpers "github.com/vsinha/batchalloc/pkg/infrastructure/testing"
)

func TestAssembler_Assemble(t *testing.T) {
	requests, batches, priorities := testhelpers.BuildRepositories()

	// A later priority row for the same client supersedes the first one,
	// and a row for an unknown client is dropped.
	require.NoError(t, priorities.SavePriority(&entities.Priority{Client: "1002", Importance: 2}))
	require.NoError(t, priorities.SavePriority(&entities.Priority{Client: "7777", Importance: 9}))

	tables, err := NewAssembler(requests, batches, priorities, zap.NewNop()).Assemble(context.Background(), testhelpers.AsOf)
	require.NoError(t, err)

	assert.Equal(t, testhelpers.AsOf, tables.AsOf)
	require.Len(t, tables.Clients, 2)
	assert.Equal(t, entities.ClientID("1001"), tables.Clients[0].ID)
	assert.Equal(t, 5.0, tables.Clients[0].Priority)
	assert.Equal(t, 2.0, tables.Clients[1].Priority)
	assert.Equal(t, []entities.Location{"Mill A"}, tables.Clients[0].Locations)

	assert.Equal(t, []entities.ProductID{"PA"}, tables.Products)
	assert.Equal(t, []entities.Location{"Mill A", "Mill B"}, tables.Locations)
	assert.Len(t, tables.Batches, 2)
	assert.Len(t, tables.Demands, 2)
	assert.Len(t, tables.Compatibility, 4, "every client x batch pair is materialized")
}

func TestAssembler_DemandLastWriterWins(t *testing.T) {
	requests, batches, priorities := testhelpers.BuildRepositories()
	again, err := entities.NewRequest("1001", "Mill A", "PA", decimal.NewFromInt(25))
	require.NoError(t, err)
	require.NoError(t, requests.SaveRequest(again))

	tables, err := NewAssembler(requests, batches, priorities, nil).Assemble(context.Background(), testhelpers.AsOf)
	require.NoError(t, err)

	require.Len(t, tables.Demands, 2)
	assert.Equal(t, entities.ClientID("1001"), tables.Demands[0].Client)
	assert.True(t, tables.Demands[0].Quantity.Equal(decimal.NewFromInt(25)))
}

func TestAssembler_ClientsFromEligibilityOnly(t *testing.T) {
	requests, batches, priorities := testhelpers.BuildRepositories()
	extra := testhelpers.NewTables(testhelpers.AsOf).
		Client("1003", 0).
		Batch("B9", "PC", 4, 1, "Mill C", "1003").
		Build().Batches[0]
	require.NoError(t, batches.SaveBatch(&extra))

	tables, err := NewAssembler(requests, batches, priorities, nil).Assemble(context.Background(), testhelpers.AsOf)
	require.NoError(t, err)

	c, ok := tables.ClientByID("1003")
	require.True(t, ok, "eligibility map codes are clients")
	assert.Zero(t, c.Priority, "unspecified priority defaults to 0")
	assert.Contains(t, tables.Products, entities.ProductID("PC"))
}

func TestAssembler_CancelledContext(t *testing.T) {
	requests, batches, priorities := testhelpers.BuildRepositories()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAssembler(requests, batches, priorities, nil).Assemble(ctx, testhelpers.AsOf)
	assert.ErrorIs(t, err, context.Canceled)
}
