package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateBatch          = "CREATE_BATCH"
	ActionUpdateBatch          = "UPDATE_BATCH"
	ActionDeleteBatch          = "DELETE_BATCH"
	ActionResolveShortages     = "RESOLVE_SHORTAGES"
	ActionGenerateManifest     = "GENERATE_MANIFEST"
	ActionCloseManifest        = "CLOSE_MANIFEST"
	ActionRetireBatches        = "RETIRE_BATCHES"
	ActionCreateShipment       = "CREATE_SHIPMENT"
	ActionConsolidateManifests = "CONSOLIDATE_MANIFESTS"
	ActionAdvanceShipment      = "ADVANCE_SHIPMENT_STATUS"
	ActionDeleteShipment       = "DELETE_SHIPMENT"
)

// AuditLog tracks who did what and when for every mutation in the consolidation
// pipeline. UserID is the subject claim of the caller's token; nullable for
// automated runs.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
