package model

import (
	"time"

	"backend/pkg/normalize"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchStatus constants
const (
	BatchStatusIncomplete = "INCOMPLETE"
	BatchStatusAvailable  = "AVAILABLE"
	BatchStatusRetired    = "RETIRED"
)

// ProductionType constants
const (
	ProductionTypeStock  = "STOCK"
	ProductionTypeClient = "CLIENT"
)

// ProductionBatch is one produced lot waiting to be consolidated into a manifest.
// Weight is in kilograms. Retirement (AVAILABLE -> RETIRED) is one-way and is
// performed only by the manifest generation service.
type ProductionBatch struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`
	Weight         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"weight"`
	Status         string          `gorm:"type:varchar(20);not null;default:'AVAILABLE';index" json:"status"`
	Destination    string          `gorm:"type:varchar(255);not null" json:"destination"`
	DestinationKey string          `gorm:"type:varchar(255);not null;index" json:"-"`
	ProductionType string          `gorm:"type:varchar(20);not null;default:'STOCK'" json:"production_type"` // STOCK, CLIENT
	ClientName     string          `gorm:"type:varchar(255)" json:"client_name,omitempty"`                   // present iff ProductionType = CLIENT
	ProductionDate *time.Time      `gorm:"type:date" json:"production_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BeforeCreate assigns the ID client-side when the column default is unavailable
// (the sqlite test driver has no gen_random_uuid()).
func (b *ProductionBatch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// BeforeSave derives the canonical destination key once, at write time, so that
// matching never depends on runtime string normalization of stored rows.
func (b *ProductionBatch) BeforeSave(tx *gorm.DB) error {
	b.DestinationKey = normalize.Key(b.Destination)
	return nil
}
