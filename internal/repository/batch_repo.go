package repository

import (
	"context"

	"backend/internal/model"
	"backend/pkg/normalize"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchRepository is the Batch Store contract: plain record management plus the
// bulk status update the consolidation pipeline uses for retirement.
type BatchRepository interface {
	Create(ctx context.Context, batch *model.ProductionBatch) error
	Update(ctx context.Context, batch *model.ProductionBatch) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error)
	List(ctx context.Context, page, limit int, status, destination string) ([]model.ProductionBatch, int64, error)
	ListActive(ctx context.Context) ([]model.ProductionBatch, error)
	UpdateStatusBulk(ctx context.Context, ids []uuid.UUID, status string) (int64, error)
}

type batchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, batch *model.ProductionBatch) error {
	return GetDB(ctx, r.db).Create(batch).Error
}

func (r *batchRepository) Update(ctx context.Context, batch *model.ProductionBatch) error {
	return GetDB(ctx, r.db).Save(batch).Error
}

func (r *batchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.ProductionBatch{}).Error
}

func (r *batchRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error) {
	var batch model.ProductionBatch
	if err := GetDB(ctx, r.db).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *batchRepository) List(ctx context.Context, page, limit int, status, destination string) ([]model.ProductionBatch, int64, error) {
	var batches []model.ProductionBatch
	var total int64

	db := GetDB(ctx, r.db).Model(&model.ProductionBatch{})
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if destination != "" {
		db = db.Where("destination_key = ?", normalize.Key(destination))
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&batches).Error; err != nil {
		return nil, 0, err
	}

	return batches, total, nil
}

// ListActive returns every batch still in the production pool (not RETIRED).
// The aggregator decides eligibility; this only narrows the working set.
func (r *batchRepository) ListActive(ctx context.Context) ([]model.ProductionBatch, error) {
	var batches []model.ProductionBatch
	if err := GetDB(ctx, r.db).
		Where("status <> ?", model.BatchStatusRetired).
		Order("created_at asc").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// UpdateStatusBulk moves the given id-set to the target status in one statement.
// Rows already at the target status are skipped, which makes retirement retries
// no-ops. Returns the number of rows actually changed.
func (r *batchRepository) UpdateStatusBulk(ctx context.Context, ids []uuid.UUID, status string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := GetDB(ctx, r.db).Model(&model.ProductionBatch{}).
		Where("id IN ?", ids).
		Where("status <> ?", status).
		Update("status", status)
	return res.RowsAffected, res.Error
}
