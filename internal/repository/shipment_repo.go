package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShipmentRepository persists shipments and their manifest assignments.
type ShipmentRepository interface {
	Create(ctx context.Context, shipment *model.Shipment) error
	Update(ctx context.Context, shipment *model.Shipment) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Shipment, error)
	List(ctx context.Context, page, limit int, status string) ([]model.Shipment, int64, error)
	LinkManifest(ctx context.Context, shipmentID, manifestID uuid.UUID) error
	UnlinkAll(ctx context.Context, shipmentID uuid.UUID) error
	IsManifestAssigned(ctx context.Context, manifestID uuid.UUID) (bool, error)
	ManifestIDs(ctx context.Context, shipmentID uuid.UUID) ([]uuid.UUID, error)
}

type shipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) ShipmentRepository {
	return &shipmentRepository{db: db}
}

func (r *shipmentRepository) Create(ctx context.Context, shipment *model.Shipment) error {
	return GetDB(ctx, r.db).Create(shipment).Error
}

func (r *shipmentRepository) Update(ctx context.Context, shipment *model.Shipment) error {
	return GetDB(ctx, r.db).Save(shipment).Error
}

func (r *shipmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Shipment{}).Error
}

func (r *shipmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Shipment, error) {
	var shipment model.Shipment
	if err := GetDB(ctx, r.db).First(&shipment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *shipmentRepository) List(ctx context.Context, page, limit int, status string) ([]model.Shipment, int64, error) {
	var shipments []model.Shipment
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Shipment{})
	if status != "" {
		db = db.Where("status = ?", status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&shipments).Error; err != nil {
		return nil, 0, err
	}

	return shipments, total, nil
}

// LinkManifest writes the assignment row. The unique index on manifest_id makes
// a second assignment fail at the schema level.
func (r *shipmentRepository) LinkManifest(ctx context.Context, shipmentID, manifestID uuid.UUID) error {
	link := model.ShipmentManifest{ShipmentID: shipmentID, ManifestID: manifestID}
	return GetDB(ctx, r.db).Create(&link).Error
}

func (r *shipmentRepository) UnlinkAll(ctx context.Context, shipmentID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Where("shipment_id = ?", shipmentID).
		Delete(&model.ShipmentManifest{}).Error
}

func (r *shipmentRepository) IsManifestAssigned(ctx context.Context, manifestID uuid.UUID) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.ShipmentManifest{}).
		Where("manifest_id = ?", manifestID).
		Count(&count).Error
	return count > 0, err
}

func (r *shipmentRepository) ManifestIDs(ctx context.Context, shipmentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := GetDB(ctx, r.db).Model(&model.ShipmentManifest{}).
		Where("shipment_id = ?", shipmentID).
		Order("created_at asc").
		Pluck("manifest_id", &ids).Error
	return ids, err
}
