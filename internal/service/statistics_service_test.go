package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatisticsSnapshot(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.seedBatch(t, "Harina", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)
	env.seedBatch(t, "Sal", "Villa Martelli", model.BatchStatusIncomplete, model.ProductionTypeStock, "", 3)
	env.seedBatch(t, "Azúcar", "Rosario", model.BatchStatusAvailable, model.ProductionTypeStock, "", 7)

	manifest, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.NoError(t, err)
	require.NotNil(t, manifest)

	_, err = env.shipments.CreateShipmentForManifest(ctx, testUser, CreateShipmentRequest{ManifestID: manifest.ID})
	require.NoError(t, err)

	svc := NewStatisticsService(env.db)
	now := time.Now()
	stats, err := svc.GetStatistics(ctx, now.AddDate(0, 0, -7), now.Add(time.Hour))
	require.NoError(t, err)

	assert.EqualValues(t, 1, stats.AvailableBatches) // the Rosario batch
	assert.EqualValues(t, 1, stats.IncompleteBatches)
	assert.EqualValues(t, 1, stats.RetiredBatches)
	assert.EqualValues(t, 0, stats.OpenManifests) // closed by the shipment
	assert.EqualValues(t, 1, stats.PendingShipments)
	assert.EqualValues(t, 0, stats.InTransitShipments)
	assert.InDelta(t, 20.0, stats.WeightConsolidatedToday, 0.001)

	require.Len(t, stats.TopDestinations, 1)
	assert.Equal(t, "Villa Martelli", stats.TopDestinations[0].Destination)
	assert.EqualValues(t, 1, stats.TopDestinations[0].ManifestCount)
}
