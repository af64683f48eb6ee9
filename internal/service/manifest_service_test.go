package service

import (
	"context"
	"testing"

	"backend/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "6f1a2b3c-4d5e-4f60-8a9b-0c1d2e3f4a5b"

func TestGenerateManifestConsolidatesEligibleBatches(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	p1 := env.seedBatch(t, "Harina 000", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)
	p2 := env.seedBatch(t, "Harina 0000", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeClient, "Molinos Rio", 30)
	other := env.seedBatch(t, "Azúcar", "Rosario", model.BatchStatusAvailable, model.ProductionTypeStock, "", 7)
	pending := env.seedBatch(t, "Sal", "Villa Martelli", model.BatchStatusIncomplete, model.ProductionTypeStock, "", 3)

	resp, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, model.ManifestStatusOpen, resp.Status)
	assert.Len(t, resp.LineItems, 2)
	assert.True(t, resp.TotalWeight.Equal(decimal.NewFromInt(50)), "got %s", resp.TotalWeight)

	// Line item weights add up to the manifest total
	sum := decimal.Zero
	for _, li := range resp.LineItems {
		sum = sum.Add(li.Weight)
	}
	assert.True(t, sum.Equal(resp.TotalWeight))

	// Consolidated batches are retired; the rest of the pool is untouched
	assert.Equal(t, model.BatchStatusRetired, env.batchStatus(t, p1.ID))
	assert.Equal(t, model.BatchStatusRetired, env.batchStatus(t, p2.ID))
	assert.Equal(t, model.BatchStatusAvailable, env.batchStatus(t, other.ID))
	assert.Equal(t, model.BatchStatusIncomplete, env.batchStatus(t, pending.ID))

	assert.EqualValues(t, 1, env.auditCount(t, model.ActionGenerateManifest))
}

func TestGenerateManifestNoEligibleBatches(t *testing.T) {
	env := newTestEnv(t, false)

	env.seedBatch(t, "Azúcar", "Rosario", model.BatchStatusAvailable, model.ProductionTypeStock, "", 7)

	resp, err := env.manifests.GenerateManifest(context.Background(), testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)
	assert.Nil(t, resp)

	// No empty manifest is written
	var count int64
	require.NoError(t, env.db.Model(&model.Manifest{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestRegenerateSameDayUpdatesSameManifest(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.seedBatch(t, "Harina 000", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)
	env.seedBatch(t, "Harina 0000", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 30)

	first, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)
	require.NotNil(t, first)

	// A new batch becomes eligible after the first run
	env.seedBatch(t, "Semolín", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 10)

	second, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)
	require.NotNil(t, second)

	// Same open manifest, now carrying all three lines
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.LineItems, 3)
	assert.True(t, second.TotalWeight.Equal(decimal.NewFromInt(60)), "got %s", second.TotalWeight)

	var count int64
	require.NoError(t, env.db.Model(&model.Manifest{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGenerateMatchesDestinationIgnoringAccents(t *testing.T) {
	env := newTestEnv(t, false)

	env.seedBatch(t, "Harina", "Córdoba", model.BatchStatusAvailable, model.ProductionTypeStock, "", 12)

	resp, err := env.manifests.GenerateManifest(context.Background(), testUser, GenerateManifestRequest{Destination: "cordoba"})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Len(t, resp.LineItems, 1)
}

func TestGenerateAfterCloseOpensFreshManifest(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.seedBatch(t, "Harina", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)

	first, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = env.manifests.CloseManifest(ctx, testUser, first.ID)
	require.NoError(t, err)

	env.seedBatch(t, "Azúcar", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 5)

	second, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, second.LineItems, 1)
	assert.True(t, second.TotalWeight.Equal(decimal.NewFromInt(5)))
}

func TestCloseManifestTwiceFails(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.seedBatch(t, "Harina", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)

	resp, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)

	_, err = env.manifests.CloseManifest(ctx, testUser, resp.ID)
	require.NoError(t, err)

	_, err = env.manifests.CloseManifest(ctx, testUser, resp.ID)
	assert.ErrorIs(t, err, ErrManifestClosed)
}

func TestRetireManifestBatchesIsIdempotent(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	p1 := env.seedBatch(t, "Harina", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)

	resp, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)

	// Generation already retired everything
	retired, err := env.manifests.RetireManifestBatches(ctx, testUser, resp.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, retired)

	// Simulate a batch the original retirement pass missed
	require.NoError(t, env.db.Model(&model.ProductionBatch{}).
		Where("id = ?", p1.ID).
		Update("status", model.BatchStatusAvailable).Error)

	retired, err = env.manifests.RetireManifestBatches(ctx, testUser, resp.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, retired)
	assert.Equal(t, model.BatchStatusRetired, env.batchStatus(t, p1.ID))
}

func TestGenerateManifestAutoDispatch(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.seedBatch(t, "Harina", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)

	resp, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)
	require.NotNil(t, resp)

	// The cascade closed the manifest and created a PENDING shipment for it
	assert.Equal(t, model.ManifestStatusClosed, resp.Status)

	shipments, total, err := env.shipments.ListShipments(ctx, 1, 20, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.ShipmentStatusPending, shipments[0].Status)
	assert.Equal(t, []string{resp.ID}, shipments[0].ManifestIDs)
	assert.True(t, shipments[0].TotalWeight.Equal(resp.TotalWeight))
}

func TestGenerateManifestAutoDispatchOverride(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	env.seedBatch(t, "Harina", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)

	off := false
	resp, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{
		Destination:  "Villa Martelli",
		AutoDispatch: &off,
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, model.ManifestStatusOpen, resp.Status)

	_, total, err := env.shipments.ListShipments(ctx, 1, 20, "")
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestGetManifestNotFound(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.manifests.GetManifest(context.Background(), "1f0e2d3c-4b5a-4697-8899-aabbccddeeff")
	assert.ErrorIs(t, err, ErrManifestNotFound)
}
