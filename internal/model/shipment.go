package model

import (
	"time"

	"backend/pkg/normalize"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ShipmentStatus constants
const (
	ShipmentStatusPending   = "PENDING"
	ShipmentStatusInTransit = "IN_TRANSIT"
	ShipmentStatusDelivered = "DELIVERED"
	ShipmentStatusCancelled = "CANCELLED"
)

// Shipment (envío) is a dispatch event bundling one or more closed manifests.
type Shipment struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TrackingNumber string          `gorm:"type:varchar(40);uniqueIndex;not null" json:"tracking_number"`
	Destination    string          `gorm:"type:varchar(255);not null" json:"destination"`
	DestinationKey string          `gorm:"type:varchar(255);not null;index" json:"-"`
	Status         string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	DispatchedAt   *time.Time      `json:"dispatched_at"`
	DeliveredAt    *time.Time      `json:"delivered_at"`
	TotalWeight    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_weight"`
	TotalManifests int             `gorm:"not null;default:0" json:"total_manifests"`
	Observations   string          `gorm:"type:text" json:"observations"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (s *Shipment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *Shipment) BeforeSave(tx *gorm.DB) error {
	s.DestinationKey = normalize.Key(s.Destination)
	return nil
}

// ShipmentManifest links a manifest to the shipment carrying it. The unique
// index on ManifestID is what enforces "a manifest belongs to at most one
// shipment" at the schema level.
type ShipmentManifest struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ShipmentID uuid.UUID `gorm:"type:uuid;not null;index" json:"shipment_id"`
	ManifestID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"manifest_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (sm *ShipmentManifest) BeforeCreate(tx *gorm.DB) error {
	if sm.ID == uuid.Nil {
		sm.ID = uuid.New()
	}
	return nil
}
