package repository

import (
	"context"
	"errors"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ManifestRepository persists manifest headers and their line items.
// FindOpen* return (nil, nil) when no open manifest exists for the pair.
type ManifestRepository interface {
	FindOpen(ctx context.Context, destinationKey string, date time.Time) (*model.Manifest, error)
	FindOpenForUpdate(ctx context.Context, destinationKey string, date time.Time) (*model.Manifest, error)
	Create(ctx context.Context, manifest *model.Manifest) error
	Save(ctx context.Context, manifest *model.Manifest) error
	ReplaceLineItems(ctx context.Context, manifestID uuid.UUID, items []model.ManifestLineItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Manifest, error)
	List(ctx context.Context, page, limit int, status string) ([]model.Manifest, int64, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	ListUnassigned(ctx context.Context, destinationKey string) ([]model.Manifest, error)
}

type manifestRepository struct {
	db *gorm.DB
}

func NewManifestRepository(db *gorm.DB) ManifestRepository {
	return &manifestRepository{db: db}
}

func (r *manifestRepository) findOpen(ctx context.Context, destinationKey string, date time.Time, lock bool) (*model.Manifest, error) {
	db := GetDB(ctx, r.db)
	// sqlite has no row locks; its writers serialize on the database lock.
	if lock && db.Dialector.Name() != "sqlite" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var manifest model.Manifest
	err := db.
		Where("destination_key = ? AND manifest_date = ? AND status = ?",
			destinationKey, model.DateOnly(date), model.ManifestStatusOpen).
		First(&manifest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &manifest, nil
}

func (r *manifestRepository) FindOpen(ctx context.Context, destinationKey string, date time.Time) (*model.Manifest, error) {
	return r.findOpen(ctx, destinationKey, date, false)
}

// FindOpenForUpdate row-locks the open manifest so that concurrent generation
// calls for the same destination serialize on it.
func (r *manifestRepository) FindOpenForUpdate(ctx context.Context, destinationKey string, date time.Time) (*model.Manifest, error) {
	return r.findOpen(ctx, destinationKey, date, true)
}

func (r *manifestRepository) Create(ctx context.Context, manifest *model.Manifest) error {
	return GetDB(ctx, r.db).Omit("LineItems").Create(manifest).Error
}

func (r *manifestRepository) Save(ctx context.Context, manifest *model.Manifest) error {
	return GetDB(ctx, r.db).Omit("LineItems").Save(manifest).Error
}

// ReplaceLineItems swaps the manifest's entire line-item set. Callers that need
// the swap to be atomic run it inside a TransactionManager unit of work.
func (r *manifestRepository) ReplaceLineItems(ctx context.Context, manifestID uuid.UUID, items []model.ManifestLineItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("manifest_id = ?", manifestID).Delete(&model.ManifestLineItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ManifestID = manifestID
		items[i].Position = i
	}
	return db.Create(&items).Error
}

func (r *manifestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Manifest, error) {
	var manifest model.Manifest
	err := GetDB(ctx, r.db).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&manifest, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (r *manifestRepository) List(ctx context.Context, page, limit int, status string) ([]model.Manifest, int64, error) {
	var manifests []model.Manifest
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Manifest{})
	if status != "" {
		db = db.Where("status = ?", status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Order("manifest_date desc, created_at desc").
		Offset(offset).Limit(limit).
		Find(&manifests).Error; err != nil {
		return nil, 0, err
	}

	return manifests, total, nil
}

func (r *manifestRepository) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.Manifest{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// ListUnassigned returns every manifest for the destination with no join row in
// shipment_manifests, open or closed, oldest first.
func (r *manifestRepository) ListUnassigned(ctx context.Context, destinationKey string) ([]model.Manifest, error) {
	assigned := GetDB(ctx, r.db).Model(&model.ShipmentManifest{}).Select("manifest_id")

	var manifests []model.Manifest
	err := GetDB(ctx, r.db).
		Where("destination_key = ?", destinationKey).
		Where("id NOT IN (?)", assigned).
		Order("manifest_date asc, created_at asc").
		Find(&manifests).Error
	if err != nil {
		return nil, err
	}
	return manifests, nil
}
