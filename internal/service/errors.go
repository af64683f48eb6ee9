package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Precondition failures. Checked before any write, so no partial mutation
// accompanies them.
var (
	ErrBatchNotFound     = errors.New("batch not found")
	ErrManifestNotFound  = errors.New("manifest not found")
	ErrShipmentNotFound  = errors.New("shipment not found")
	ErrAlreadyAssigned   = errors.New("manifest is already assigned to a shipment")
	ErrManifestClosed    = errors.New("manifest is already closed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Stages of the manifest generation pipeline, in execution order.
const (
	StageManifestWrite = "manifest_write"
	StageRetirement    = "retirement"
	StageShipment      = "shipment"
)

// StageError reports which stage of manifest generation failed. Failures at
// StageRetirement and StageShipment are soft: the manifest write already
// committed, the batches and manifest are in a valid intermediate state, and
// the stage can be retried on its own.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("manifest generation failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PartialConsistencyError flags the sequenced (non-transactional) write path
// stopping mid-sequence: the manifest header exists but its line items may be
// stale or missing until the next successful regeneration. Operators treat
// this differently from a clean failure.
type PartialConsistencyError struct {
	ManifestID uuid.UUID
	Step       string
	Err        error
}

func (e *PartialConsistencyError) Error() string {
	return fmt.Sprintf("manifest %s left partially written at %s: %v", e.ManifestID, e.Step, e.Err)
}

func (e *PartialConsistencyError) Unwrap() error { return e.Err }
