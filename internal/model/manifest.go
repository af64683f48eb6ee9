package model

import (
	"time"

	"backend/pkg/normalize"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ManifestStatus constants. The only transition is OPEN -> CLOSED.
const (
	ManifestStatusOpen   = "OPEN"
	ManifestStatusClosed = "CLOSED"
)

// Manifest (remito) is the shipping document for one destination on one calendar
// date. The partial unique index keeps at most one OPEN manifest per
// (destination, date); regeneration updates that row in place.
type Manifest struct {
	ID             uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Destination    string             `gorm:"type:varchar(255);not null" json:"destination"`
	DestinationKey string             `gorm:"type:varchar(255);not null;uniqueIndex:uniq_open_manifest,where:status = 'OPEN'" json:"-"`
	ManifestDate   time.Time          `gorm:"type:date;not null;uniqueIndex:uniq_open_manifest,where:status = 'OPEN'" json:"manifest_date"`
	Status         string             `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"status"`
	TotalWeight    decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0" json:"total_weight"`
	Observations   string             `gorm:"type:text" json:"observations"`
	LineItems      []ManifestLineItem `gorm:"foreignKey:ManifestID;constraint:OnDelete:CASCADE" json:"line_items"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (m *Manifest) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (m *Manifest) BeforeSave(tx *gorm.DB) error {
	m.DestinationKey = normalize.Key(m.Destination)
	return nil
}

// ManifestLineItem is one aggregated row inside a manifest: the weight and count
// of the batches that map to the (batch, source label) group.
type ManifestLineItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ManifestID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"manifest_id"`
	BatchID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"product_name"`
	Weight      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"weight"`
	BatchCount  int             `gorm:"not null;default:1" json:"batch_count"`
	LotLabel    string          `gorm:"type:varchar(100)" json:"lot_label"`
	SourceLabel string          `gorm:"type:varchar(255);not null" json:"source_label"` // client name or "Stock"
	Notes       string          `gorm:"type:text" json:"notes"`
	Position    int             `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (li *ManifestLineItem) BeforeCreate(tx *gorm.DB) error {
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	return nil
}

// DateOnly truncates a timestamp to its calendar date in UTC. Manifest lookups
// must agree on the day boundary regardless of the wall-clock component.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
