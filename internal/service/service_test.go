package service

import (
	"context"
	"fmt"
	"testing"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// schema mirrors the migrated postgres tables, minus the postgres-only column
// defaults (ids are assigned client-side by the BeforeCreate hooks).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS production_batches (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  weight NUMERIC NOT NULL,
  status TEXT NOT NULL DEFAULT 'AVAILABLE',
  destination TEXT NOT NULL,
  destination_key TEXT NOT NULL,
  production_type TEXT NOT NULL DEFAULT 'STOCK',
  client_name TEXT,
  production_date DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS manifests (
  id TEXT PRIMARY KEY,
  destination TEXT NOT NULL,
  destination_key TEXT NOT NULL,
  manifest_date DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'OPEN',
  total_weight NUMERIC NOT NULL DEFAULT 0,
  observations TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_manifest
  ON manifests (destination_key, manifest_date) WHERE status = 'OPEN';`,
	`CREATE TABLE IF NOT EXISTS manifest_line_items (
  id TEXT PRIMARY KEY,
  manifest_id TEXT NOT NULL,
  batch_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  weight NUMERIC NOT NULL,
  batch_count INTEGER NOT NULL DEFAULT 1,
  lot_label TEXT,
  source_label TEXT NOT NULL,
  notes TEXT,
  position INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS shipments (
  id TEXT PRIMARY KEY,
  tracking_number TEXT NOT NULL UNIQUE,
  destination TEXT NOT NULL,
  destination_key TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  dispatched_at DATETIME,
  delivered_at DATETIME,
  total_weight NUMERIC NOT NULL DEFAULT 0,
  total_manifests INTEGER NOT NULL DEFAULT 0,
  observations TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS shipment_manifests (
  id TEXT PRIMARY KEY,
  shipment_id TEXT NOT NULL,
  manifest_id TEXT NOT NULL UNIQUE,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  action TEXT NOT NULL,
  entity_id TEXT,
  entity_name TEXT,
  details TEXT,
  created_at DATETIME
);`,
}

type testEnv struct {
	db *gorm.DB

	batchRepo    repository.BatchRepository
	manifestRepo repository.ManifestRepository
	shipmentRepo repository.ShipmentRepository
	auditRepo    repository.AuditRepository

	batches   BatchService
	manifests ManifestService
	shipments ShipmentService
}

func newTestEnv(t *testing.T, autoDispatch bool) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	env := &testEnv{
		db:           db,
		batchRepo:    repository.NewBatchRepository(db),
		manifestRepo: repository.NewManifestRepository(db),
		shipmentRepo: repository.NewShipmentRepository(db),
		auditRepo:    repository.NewAuditRepository(db),
	}
	tx := repository.NewTransactionManager(db)

	env.batches = NewBatchService(env.batchRepo, env.auditRepo, tx, nil)
	env.shipments = NewShipmentService(env.shipmentRepo, env.manifestRepo, env.auditRepo, tx, nil)
	env.manifests = NewManifestService(env.batchRepo, env.manifestRepo, env.auditRepo, tx, env.shipments, nil, autoDispatch)

	return env
}

func (e *testEnv) seedBatch(t *testing.T, name, destination, status, productionType, clientName string, weight int64) model.ProductionBatch {
	t.Helper()

	b := model.ProductionBatch{
		Name:           name,
		Weight:         decimal.NewFromInt(weight),
		Status:         status,
		Destination:    destination,
		ProductionType: productionType,
		ClientName:     clientName,
	}
	require.NoError(t, e.batchRepo.Create(context.Background(), &b))
	return b
}

func (e *testEnv) batchStatus(t *testing.T, id uuid.UUID) string {
	t.Helper()

	b, err := e.batchRepo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func (e *testEnv) auditCount(t *testing.T, action string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, e.db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&count).Error)
	return count
}
