package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"
	"backend/pkg/normalize"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type GenerateManifestRequest struct {
	Destination  string `json:"destination" binding:"required"`
	Observations string `json:"observations"`
	AutoDispatch *bool  `json:"auto_dispatch"` // override for the AUTO_DISPATCH default
}

type ManifestLineItemResponse struct {
	ID          string          `json:"id"`
	BatchID     string          `json:"batch_id"`
	ProductName string          `json:"product_name"`
	Weight      decimal.Decimal `json:"weight"`
	BatchCount  int             `json:"batch_count"`
	LotLabel    string          `json:"lot_label"`
	SourceLabel string          `json:"source_label"`
	Notes       string          `json:"notes"`
}

type ManifestResponse struct {
	ID           string                     `json:"id"`
	Destination  string                     `json:"destination"`
	ManifestDate string                     `json:"manifest_date"`
	Status       string                     `json:"status"`
	TotalWeight  decimal.Decimal            `json:"total_weight"`
	Observations string                     `json:"observations"`
	LineItems    []ManifestLineItemResponse `json:"line_items"`
	CreatedAt    string                     `json:"created_at"`
	UpdatedAt    string                     `json:"updated_at"`
}

// --- Interface ---

type ManifestService interface {
	// GenerateManifest consolidates every eligible batch bound for the
	// destination into the day's open manifest. Returns (nil, nil) when no
	// batch qualifies. A non-nil response alongside a *StageError means the
	// manifest committed but a later stage (retirement, shipment) failed.
	GenerateManifest(ctx context.Context, userID string, req GenerateManifestRequest) (*ManifestResponse, error)
	RetireManifestBatches(ctx context.Context, userID, id string) (int64, error)
	CloseManifest(ctx context.Context, userID, id string) (*ManifestResponse, error)
	GetManifest(ctx context.Context, id string) (*ManifestResponse, error)
	ListManifests(ctx context.Context, page, limit int, status string) ([]ManifestResponse, int64, error)
}

type manifestService struct {
	batchRepo    repository.BatchRepository
	manifestRepo repository.ManifestRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	shipments    ShipmentService
	hub          *ws.Hub
	autoDispatch bool
}

func NewManifestService(
	batchRepo repository.BatchRepository,
	manifestRepo repository.ManifestRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	shipments ShipmentService,
	hub *ws.Hub,
	autoDispatch bool,
) ManifestService {
	return &manifestService{
		batchRepo:    batchRepo,
		manifestRepo: manifestRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		shipments:    shipments,
		hub:          hub,
		autoDispatch: autoDispatch,
	}
}

// --- Implementation ---

func (s *manifestService) GenerateManifest(ctx context.Context, userID string, req GenerateManifestRequest) (*ManifestResponse, error) {
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return nil, errors.New("destination is required")
	}

	// 1. Aggregate the current pool. The drafts captured here are the single
	// source of truth for the rest of the call: line items, total weight and
	// the retirement id-set all come from them, never from a re-query.
	batches, err := s.batchRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load production batches: %w", err)
	}

	drafts := AggregateBatches(batches, destination)
	if len(drafts) == 0 {
		// Nothing to consolidate. Not an error, and no empty manifest is written.
		return nil, nil
	}

	today := model.DateOnly(time.Now())

	// 2. Write the manifest: find-or-create the day's open manifest and fold
	// the drafts into its line items, atomically when the storage layer
	// cooperates.
	var manifest *model.Manifest
	var created bool
	write := func(txCtx context.Context) error {
		var txErr error
		manifest, created, txErr = s.writeManifest(txCtx, userID, destination, req.Observations, today, drafts)
		return txErr
	}
	err = s.txManager.RunInTx(ctx, write)
	if err != nil && isDuplicateKey(err) {
		// Lost the insert race to a concurrent generation. The open manifest
		// exists now, so a second attempt merges into it.
		err = s.txManager.RunInTx(ctx, write)
	}
	if err != nil && errors.Is(err, gorm.ErrInvalidTransaction) {
		log.Printf("manifest generation for %q: transactional write unavailable, using sequenced fallback: %v", destination, err)
		manifest, created, err = s.writeManifestSequenced(ctx, userID, destination, req.Observations, today, drafts)
	}
	if err != nil {
		return nil, &StageError{Stage: StageManifestWrite, Err: err}
	}

	eventType := ws.EventUpdate
	if created {
		eventType = ws.EventInsert
	}
	s.hub.Notify(ws.TableManifests, eventType, manifest)

	// 3. Retire exactly the captured id-set, only now that the manifest write
	// committed. A failure here leaves a valid manifest; retirement can be
	// retried on its own and is idempotent.
	ids := draftBatchIDs(drafts)
	if _, retireErr := s.batchRepo.UpdateStatusBulk(ctx, ids, model.BatchStatusRetired); retireErr != nil {
		log.Printf("manifest %s: batch retirement failed, retry via retire-batches: %v", manifest.ID, retireErr)
		resp := s.responseFor(ctx, manifest.ID)
		return resp, &StageError{Stage: StageRetirement, Err: retireErr}
	}
	s.hub.Notify(ws.TableBatches, ws.EventUpdate, map[string]interface{}{
		"ids":    ids,
		"status": model.BatchStatusRetired,
	})

	// 4. Optional dispatch cascade. Failure does not roll anything back; the
	// shipment can be created later from the manifest id.
	if s.shouldDispatch(req.AutoDispatch) {
		if _, shipErr := s.shipments.CreateShipmentForManifest(ctx, userID, CreateShipmentRequest{
			ManifestID: manifest.ID.String(),
		}); shipErr != nil {
			log.Printf("manifest %s: automatic shipment creation failed: %v", manifest.ID, shipErr)
			resp := s.responseFor(ctx, manifest.ID)
			return resp, &StageError{Stage: StageShipment, Err: shipErr}
		}
	}

	full, err := s.manifestRepo.FindByID(ctx, manifest.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload manifest: %w", err)
	}
	resp := toManifestResponse(*full)
	return &resp, nil
}

// writeManifest performs the find-or-create and line-item merge inside the
// caller's transaction. The open manifest row is locked for update so that
// concurrent generation calls for the same destination serialize on it; a lost
// insert race surfaces as a unique violation and the caller retries the whole
// transaction against the row that won.
func (s *manifestService) writeManifest(ctx context.Context, userID, destination, observations string, date time.Time, drafts []LineItemDraft) (*model.Manifest, bool, error) {
	destKey := normalize.Key(destination)

	manifest, err := s.manifestRepo.FindOpenForUpdate(ctx, destKey, date)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up open manifest: %w", err)
	}

	created := false
	if manifest == nil {
		manifest = &model.Manifest{
			Destination:  destination,
			ManifestDate: date,
			Status:       model.ManifestStatusOpen,
		}
		if createErr := s.manifestRepo.Create(ctx, manifest); createErr != nil {
			return nil, false, fmt.Errorf("failed to create manifest: %w", createErr)
		}
		created = true
	}

	return s.applyDrafts(ctx, userID, manifest, created, observations, drafts)
}

// applyDrafts folds the drafts into the manifest's current line items and
// persists header and lines. Shared by the transactional and sequenced paths.
func (s *manifestService) applyDrafts(ctx context.Context, userID string, manifest *model.Manifest, created bool, observations string, drafts []LineItemDraft) (*model.Manifest, bool, error) {
	var current []model.ManifestLineItem
	if !created {
		full, err := s.manifestRepo.FindByID(ctx, manifest.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load manifest lines: %w", err)
		}
		current = full.LineItems
	}

	items, total := MergeLineItems(current, drafts)
	manifest.TotalWeight = total
	if observations != "" {
		manifest.Observations = observations
	}
	if saveErr := s.manifestRepo.Save(ctx, manifest); saveErr != nil {
		return nil, false, fmt.Errorf("failed to update manifest header: %w", saveErr)
	}

	if replaceErr := s.manifestRepo.ReplaceLineItems(ctx, manifest.ID, items); replaceErr != nil {
		return nil, false, fmt.Errorf("failed to replace line items: %w", replaceErr)
	}

	if auditErr := s.logAudit(ctx, userID, model.ActionGenerateManifest, manifest.ID.String(), manifest.Destination, map[string]interface{}{
		"manifest_date": manifest.ManifestDate.Format(time.DateOnly),
		"line_items":    len(items),
		"total_weight":  total.String(),
		"created":       created,
	}); auditErr != nil {
		return nil, false, auditErr
	}

	return manifest, created, nil
}

// writeManifestSequenced is the degraded path for storage that refuses the
// transaction: the same logical steps, issued one by one. It is not
// crash-atomic. Once the header exists, a failure on the line-item swap is
// reported as PartialConsistencyError so operators know the manifest needs
// regeneration.
func (s *manifestService) writeManifestSequenced(ctx context.Context, userID, destination, observations string, date time.Time, drafts []LineItemDraft) (*model.Manifest, bool, error) {
	destKey := normalize.Key(destination)

	manifest, err := s.manifestRepo.FindOpen(ctx, destKey, date)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up open manifest: %w", err)
	}

	created := false
	if manifest == nil {
		manifest = &model.Manifest{
			Destination:  destination,
			ManifestDate: date,
			Status:       model.ManifestStatusOpen,
		}
		if createErr := s.manifestRepo.Create(ctx, manifest); createErr != nil {
			return nil, false, fmt.Errorf("failed to create manifest: %w", createErr)
		}
		created = true
	}

	var current []model.ManifestLineItem
	if !created {
		full, loadErr := s.manifestRepo.FindByID(ctx, manifest.ID)
		if loadErr != nil {
			return nil, false, fmt.Errorf("failed to load manifest lines: %w", loadErr)
		}
		current = full.LineItems
	}

	items, total := MergeLineItems(current, drafts)
	manifest.TotalWeight = total
	if observations != "" {
		manifest.Observations = observations
	}
	if saveErr := s.manifestRepo.Save(ctx, manifest); saveErr != nil {
		if created {
			return nil, false, &PartialConsistencyError{ManifestID: manifest.ID, Step: "save_header", Err: saveErr}
		}
		return nil, false, fmt.Errorf("failed to update manifest header: %w", saveErr)
	}

	if replaceErr := s.manifestRepo.ReplaceLineItems(ctx, manifest.ID, items); replaceErr != nil {
		return nil, false, &PartialConsistencyError{ManifestID: manifest.ID, Step: "replace_line_items", Err: replaceErr}
	}

	if auditErr := s.logAudit(ctx, userID, model.ActionGenerateManifest, manifest.ID.String(), destination, map[string]interface{}{
		"manifest_date": date.Format(time.DateOnly),
		"line_items":    len(items),
		"total_weight":  total.String(),
		"created":       created,
		"sequenced":     true,
	}); auditErr != nil {
		// The manifest itself is complete at this point; losing the audit row
		// is not worth failing the generation over.
		log.Printf("manifest %s: audit write failed on sequenced path: %v", manifest.ID, auditErr)
	}

	return manifest, created, nil
}

// RetireManifestBatches re-runs the retirement stage for a manifest, deriving
// the id-set from the persisted line items rather than re-aggregating. Retiring
// an already-retired batch is a no-op, so retries are safe.
func (s *manifestService) RetireManifestBatches(ctx context.Context, userID, id string) (int64, error) {
	manifestID, err := uuid.Parse(id)
	if err != nil {
		return 0, fmt.Errorf("invalid manifest id: %w", err)
	}

	manifest, err := s.manifestRepo.FindByID(ctx, manifestID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrManifestNotFound, id)
	}

	ids := make([]uuid.UUID, 0, len(manifest.LineItems))
	seen := make(map[uuid.UUID]bool, len(manifest.LineItems))
	for _, li := range manifest.LineItems {
		if seen[li.BatchID] {
			continue
		}
		seen[li.BatchID] = true
		ids = append(ids, li.BatchID)
	}

	affected, err := s.batchRepo.UpdateStatusBulk(ctx, ids, model.BatchStatusRetired)
	if err != nil {
		return 0, fmt.Errorf("failed to retire batches: %w", err)
	}

	if auditErr := s.logAudit(ctx, userID, model.ActionRetireBatches, manifest.ID.String(), manifest.Destination, map[string]interface{}{
		"batch_ids": len(ids),
		"retired":   affected,
	}); auditErr != nil {
		log.Printf("manifest %s: audit write failed after retirement: %v", manifest.ID, auditErr)
	}

	if affected > 0 {
		s.hub.Notify(ws.TableBatches, ws.EventUpdate, map[string]interface{}{
			"ids":    ids,
			"status": model.BatchStatusRetired,
		})
	}

	return affected, nil
}

// CloseManifest is the explicit operator close. Closed manifests are immutable,
// so closing twice fails with ErrManifestClosed.
func (s *manifestService) CloseManifest(ctx context.Context, userID, id string) (*ManifestResponse, error) {
	manifestID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest id: %w", err)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		manifest, findErr := s.manifestRepo.FindByID(txCtx, manifestID)
		if findErr != nil {
			return fmt.Errorf("%w: %s", ErrManifestNotFound, id)
		}
		if manifest.Status != model.ManifestStatusOpen {
			return fmt.Errorf("%w: %s", ErrManifestClosed, id)
		}

		if statusErr := s.manifestRepo.SetStatus(txCtx, manifestID, model.ManifestStatusClosed); statusErr != nil {
			return fmt.Errorf("failed to close manifest: %w", statusErr)
		}

		return s.logAudit(txCtx, userID, model.ActionCloseManifest, manifest.ID.String(), manifest.Destination, map[string]interface{}{
			"manifest_date": manifest.ManifestDate.Format(time.DateOnly),
		})
	})
	if err != nil {
		return nil, err
	}

	s.hub.Notify(ws.TableManifests, ws.EventUpdate, map[string]interface{}{
		"id":     id,
		"status": model.ManifestStatusClosed,
	})

	full, err := s.manifestRepo.FindByID(ctx, manifestID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload manifest: %w", err)
	}
	resp := toManifestResponse(*full)
	return &resp, nil
}

func (s *manifestService) GetManifest(ctx context.Context, id string) (*ManifestResponse, error) {
	manifestID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest id: %w", err)
	}

	manifest, err := s.manifestRepo.FindByID(ctx, manifestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, id)
	}
	resp := toManifestResponse(*manifest)
	return &resp, nil
}

func (s *manifestService) ListManifests(ctx context.Context, page, limit int, status string) ([]ManifestResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	manifests, total, err := s.manifestRepo.List(ctx, page, limit, status)
	if err != nil {
		return nil, 0, err
	}

	res := make([]ManifestResponse, 0, len(manifests))
	for i := range manifests {
		res = append(res, toManifestResponse(manifests[i]))
	}
	return res, total, nil
}

// --- Helpers ---

// isDuplicateKey detects a unique-index rejection across drivers; gorm only
// translates it when TranslateError is on.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

func (s *manifestService) shouldDispatch(override *bool) bool {
	if override != nil {
		return *override
	}
	return s.autoDispatch
}

// responseFor reloads a manifest for soft-failure returns; a nil response on a
// soft failure is worse than a missing reload, so errors only log.
func (s *manifestService) responseFor(ctx context.Context, id uuid.UUID) *ManifestResponse {
	manifest, err := s.manifestRepo.FindByID(ctx, id)
	if err != nil {
		log.Printf("manifest %s: reload failed: %v", id, err)
		return nil
	}
	resp := toManifestResponse(*manifest)
	return &resp
}

func (s *manifestService) logAudit(ctx context.Context, userID, action, entityID, entityName string, payload map[string]interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}

	details, _ := json.Marshal(payload)
	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(details),
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toManifestResponse(m model.Manifest) ManifestResponse {
	resp := ManifestResponse{
		ID:           m.ID.String(),
		Destination:  m.Destination,
		ManifestDate: m.ManifestDate.Format(time.DateOnly),
		Status:       m.Status,
		TotalWeight:  m.TotalWeight,
		Observations: m.Observations,
		LineItems:    make([]ManifestLineItemResponse, 0, len(m.LineItems)),
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    m.UpdatedAt.Format(time.RFC3339),
	}
	for _, li := range m.LineItems {
		resp.LineItems = append(resp.LineItems, ManifestLineItemResponse{
			ID:          li.ID.String(),
			BatchID:     li.BatchID.String(),
			ProductName: li.ProductName,
			Weight:      li.Weight,
			BatchCount:  li.BatchCount,
			LotLabel:    li.LotLabel,
			SourceLabel: li.SourceLabel,
			Notes:       li.Notes,
		})
	}
	return resp
}
