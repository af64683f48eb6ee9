package service

import (
	"context"
	"errors"
	"testing"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Fault-injection wrappers around the real repositories. Each one forwards to
// the embedded implementation except for the single call it is told to reject.

type flakyBatchRepo struct {
	repository.BatchRepository
	failRetire bool
}

func (r *flakyBatchRepo) UpdateStatusBulk(ctx context.Context, ids []uuid.UUID, status string) (int64, error) {
	if r.failRetire {
		return 0, errors.New("status update rejected")
	}
	return r.BatchRepository.UpdateStatusBulk(ctx, ids, status)
}

type flakyManifestRepo struct {
	repository.ManifestRepository
	failReplace bool
}

func (r *flakyManifestRepo) ReplaceLineItems(ctx context.Context, manifestID uuid.UUID, items []model.ManifestLineItem) error {
	if r.failReplace {
		return errors.New("line item write rejected")
	}
	return r.ManifestRepository.ReplaceLineItems(ctx, manifestID, items)
}

type flakyShipmentRepo struct {
	repository.ShipmentRepository
	failManifestIDs bool
}

func (r *flakyShipmentRepo) ManifestIDs(ctx context.Context, shipmentID uuid.UUID) ([]uuid.UUID, error) {
	if r.failManifestIDs {
		return nil, errors.New("manifest lookup rejected")
	}
	return r.ShipmentRepository.ManifestIDs(ctx, shipmentID)
}

type downShipments struct {
	ShipmentService
}

func (downShipments) CreateShipmentForManifest(ctx context.Context, userID string, req CreateShipmentRequest) (*ShipmentResponse, error) {
	return nil, errors.New("carrier unavailable")
}

// noTxManager simulates storage that refuses transactions, forcing the
// sequenced write path.
type noTxManager struct{}

func (noTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return gorm.ErrInvalidTransaction
}

func TestGenerateManifestRetirementFailureIsSoft(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	batch := env.seedBatch(t, "Harina 000", "Villa Martelli", model.BatchStatusAvailable, model.ProductionTypeStock, "", 20)

	flaky := &flakyBatchRepo{BatchRepository: env.batchRepo, failRetire: true}
	tx := repository.NewTransactionManager(env.db)
	svc := NewManifestService(flaky, env.manifestRepo, env.auditRepo, tx, env.shipments, nil, false)

	resp, err := svc.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Villa Martelli"})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageRetirement, stageErr.Stage)

	// The manifest committed before the stage failed and comes back alongside
	// the error.
	require.NotNil(t, resp)
	assert.Equal(t, model.ManifestStatusOpen, resp.Status)
	require.Len(t, resp.LineItems, 1)

	// The batch is still in the pool.
	assert.Equal(t, model.BatchStatusAvailable, env.batchStatus(t, batch.ID))

	// Retirement is independently retriable once the fault clears.
	flaky.failRetire = false
	retired, err := svc.RetireManifestBatches(ctx, testUser, resp.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, retired)
	assert.Equal(t, model.BatchStatusRetired, env.batchStatus(t, batch.ID))
}

func TestGenerateManifestShipmentFailureIsSoft(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	batch := env.seedBatch(t, "Sal fina", "Rosario", model.BatchStatusAvailable, model.ProductionTypeStock, "", 12)

	tx := repository.NewTransactionManager(env.db)
	svc := NewManifestService(env.batchRepo, env.manifestRepo, env.auditRepo, tx, downShipments{env.shipments}, nil, true)

	resp, err := svc.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Rosario"})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageShipment, stageErr.Stage)

	// Manifest write and retirement both completed; only the dispatch is
	// missing and the manifest stays open for it.
	require.NotNil(t, resp)
	assert.Equal(t, model.ManifestStatusOpen, resp.Status)
	assert.Equal(t, model.BatchStatusRetired, env.batchStatus(t, batch.ID))

	// The shipment stage can be rerun on its own against the returned id.
	shipment, err := env.shipments.CreateShipmentForManifest(ctx, testUser, CreateShipmentRequest{ManifestID: resp.ID})
	require.NoError(t, err)
	assert.Equal(t, model.ShipmentStatusPending, shipment.Status)

	reloaded, err := env.manifests.GetManifest(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ManifestStatusClosed, reloaded.Status)
}

func TestSequencedWriteReportsPartialConsistency(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.seedBatch(t, "Azúcar", "Córdoba", model.BatchStatusAvailable, model.ProductionTypeStock, "", 8)

	flaky := &flakyManifestRepo{ManifestRepository: env.manifestRepo, failReplace: true}
	svc := NewManifestService(env.batchRepo, flaky, env.auditRepo, noTxManager{}, env.shipments, nil, false)

	resp, err := svc.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "Córdoba"})
	require.Error(t, err)
	assert.Nil(t, resp)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageManifestWrite, stageErr.Stage)

	var partial *PartialConsistencyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "replace_line_items", partial.Step)
	require.NotEqual(t, uuid.Nil, partial.ManifestID)

	// The header row from the interrupted sequence exists and is addressable
	// by the reported id.
	manifest, err := env.manifestRepo.FindByID(ctx, partial.ManifestID)
	require.NoError(t, err)
	assert.Equal(t, model.ManifestStatusOpen, manifest.Status)
	assert.Empty(t, manifest.LineItems)
}

func TestGetShipmentKeepsInfrastructureErrors(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	env.seedBatch(t, "Harina 0000", "La Plata", model.BatchStatusAvailable, model.ProductionTypeStock, "", 5)
	manifest, err := env.manifests.GenerateManifest(ctx, testUser, GenerateManifestRequest{Destination: "La Plata"})
	require.NoError(t, err)
	shipment, err := env.shipments.CreateShipmentForManifest(ctx, testUser, CreateShipmentRequest{ManifestID: manifest.ID})
	require.NoError(t, err)

	flaky := &flakyShipmentRepo{ShipmentRepository: env.shipmentRepo, failManifestIDs: true}
	tx := repository.NewTransactionManager(env.db)
	svc := NewShipmentService(flaky, env.manifestRepo, env.auditRepo, tx, nil)

	// A failing lookup on an existing shipment must not masquerade as a
	// missing shipment.
	_, err = svc.GetShipment(ctx, shipment.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrShipmentNotFound)

	flaky.failManifestIDs = false
	_, err = svc.GetShipment(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrShipmentNotFound)
}
