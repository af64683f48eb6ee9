package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

type CreateShipmentRequest struct {
	ManifestID   string `json:"manifest_id" binding:"required"`
	Observations string `json:"observations"`
}

type ConsolidateShipmentRequest struct {
	Destination  string `json:"destination" binding:"required"`
	Observations string `json:"observations"`
}

type AdvanceStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=IN_TRANSIT DELIVERED CANCELLED"`
}

type ShipmentResponse struct {
	ID             string          `json:"id"`
	TrackingNumber string          `json:"tracking_number"`
	Destination    string          `json:"destination"`
	Status         string          `json:"status"`
	DispatchedAt   *string         `json:"dispatched_at"`
	DeliveredAt    *string         `json:"delivered_at"`
	TotalWeight    decimal.Decimal `json:"total_weight"`
	TotalManifests int             `json:"total_manifests"`
	Observations   string          `json:"observations"`
	ManifestIDs    []string        `json:"manifest_ids"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// --- Interface ---

type ShipmentService interface {
	CreateShipmentForManifest(ctx context.Context, userID string, req CreateShipmentRequest) (*ShipmentResponse, error)
	CreateShipmentFromPendingManifests(ctx context.Context, userID string, req ConsolidateShipmentRequest) (*ShipmentResponse, error)
	AdvanceStatus(ctx context.Context, userID, id, next string) (*ShipmentResponse, error)
	DeleteShipment(ctx context.Context, userID, id string) error
	GetShipment(ctx context.Context, id string) (*ShipmentResponse, error)
	ListShipments(ctx context.Context, page, limit int, status string) ([]ShipmentResponse, int64, error)
}

type shipmentService struct {
	shipmentRepo repository.ShipmentRepository
	manifestRepo repository.ManifestRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	hub          *ws.Hub
}

func NewShipmentService(
	shipmentRepo repository.ShipmentRepository,
	manifestRepo repository.ManifestRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
) ShipmentService {
	return &shipmentService{
		shipmentRepo: shipmentRepo,
		manifestRepo: manifestRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		hub:          hub,
	}
}

// --- Implementation ---

// CreateShipmentForManifest creates a PENDING shipment carrying exactly one
// manifest and closes that manifest. Fails with ErrManifestNotFound or
// ErrAlreadyAssigned before any write.
func (s *shipmentService) CreateShipmentForManifest(ctx context.Context, userID string, req CreateShipmentRequest) (*ShipmentResponse, error) {
	manifestID, err := uuid.Parse(req.ManifestID)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest id: %w", err)
	}

	var shipment model.Shipment
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		manifest, findErr := s.manifestRepo.FindByID(txCtx, manifestID)
		if findErr != nil {
			return fmt.Errorf("%w: %s", ErrManifestNotFound, req.ManifestID)
		}

		assigned, checkErr := s.shipmentRepo.IsManifestAssigned(txCtx, manifestID)
		if checkErr != nil {
			return fmt.Errorf("failed to check manifest assignment: %w", checkErr)
		}
		if assigned {
			return fmt.Errorf("%w: %s", ErrAlreadyAssigned, req.ManifestID)
		}

		shipment = model.Shipment{
			TrackingNumber: generateTrackingNumber(time.Now()),
			Destination:    manifest.Destination,
			Status:         model.ShipmentStatusPending,
			TotalWeight:    manifest.TotalWeight,
			TotalManifests: 1,
			Observations:   req.Observations,
		}
		if createErr := s.shipmentRepo.Create(txCtx, &shipment); createErr != nil {
			return fmt.Errorf("failed to create shipment: %w", createErr)
		}

		if linkErr := s.shipmentRepo.LinkManifest(txCtx, shipment.ID, manifest.ID); linkErr != nil {
			return fmt.Errorf("failed to link manifest: %w", linkErr)
		}

		// Assignment forces the manifest closed
		if statusErr := s.manifestRepo.SetStatus(txCtx, manifest.ID, model.ManifestStatusClosed); statusErr != nil {
			return fmt.Errorf("failed to close manifest: %w", statusErr)
		}

		return s.logAudit(txCtx, userID, model.ActionCreateShipment, shipment.ID.String(), shipment.TrackingNumber, map[string]interface{}{
			"manifest_id":  manifest.ID.String(),
			"destination":  manifest.Destination,
			"total_weight": manifest.TotalWeight.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.hub.Notify(ws.TableShipments, ws.EventInsert, shipment)
	s.hub.Notify(ws.TableManifests, ws.EventUpdate, map[string]interface{}{
		"id":     manifestID.String(),
		"status": model.ManifestStatusClosed,
	})

	return s.loadResponse(ctx, shipment.ID)
}

// CreateShipmentFromPendingManifests bundles every manifest for the destination
// that no shipment has claimed yet, open or closed, into a single shipment and
// closes each. Returns (nil, nil) when there is nothing to consolidate.
func (s *shipmentService) CreateShipmentFromPendingManifests(ctx context.Context, userID string, req ConsolidateShipmentRequest) (*ShipmentResponse, error) {
	destKey := normalize.Key(req.Destination)

	var shipment model.Shipment
	var consolidated int
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		manifests, listErr := s.manifestRepo.ListUnassigned(txCtx, destKey)
		if listErr != nil {
			return fmt.Errorf("failed to list unassigned manifests: %w", listErr)
		}
		if len(manifests) == 0 {
			return nil
		}
		consolidated = len(manifests)

		total := decimal.Zero
		for _, m := range manifests {
			total = total.Add(m.TotalWeight)
		}

		shipment = model.Shipment{
			TrackingNumber: generateTrackingNumber(time.Now()),
			Destination:    req.Destination,
			Status:         model.ShipmentStatusPending,
			TotalWeight:    total,
			TotalManifests: len(manifests),
			Observations:   req.Observations,
		}
		if createErr := s.shipmentRepo.Create(txCtx, &shipment); createErr != nil {
			return fmt.Errorf("failed to create shipment: %w", createErr)
		}

		manifestIDs := make([]string, 0, len(manifests))
		for _, m := range manifests {
			if linkErr := s.shipmentRepo.LinkManifest(txCtx, shipment.ID, m.ID); linkErr != nil {
				return fmt.Errorf("failed to link manifest %s: %w", m.ID, linkErr)
			}
			if m.Status != model.ManifestStatusClosed {
				if statusErr := s.manifestRepo.SetStatus(txCtx, m.ID, model.ManifestStatusClosed); statusErr != nil {
					return fmt.Errorf("failed to close manifest %s: %w", m.ID, statusErr)
				}
			}
			manifestIDs = append(manifestIDs, m.ID.String())
		}

		return s.logAudit(txCtx, userID, model.ActionConsolidateManifests, shipment.ID.String(), shipment.TrackingNumber, map[string]interface{}{
			"destination":  req.Destination,
			"manifest_ids": manifestIDs,
			"total_weight": total.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	if consolidated == 0 {
		return nil, nil
	}

	s.hub.Notify(ws.TableShipments, ws.EventInsert, shipment)
	s.hub.Notify(ws.TableManifests, ws.EventUpdate, map[string]interface{}{
		"destination": req.Destination,
		"status":      model.ManifestStatusClosed,
	})

	return s.loadResponse(ctx, shipment.ID)
}

// AdvanceStatus moves a shipment along the forward-only transition graph.
// Illegal moves fail with ErrInvalidTransition and change nothing.
func (s *shipmentService) AdvanceStatus(ctx context.Context, userID, id, next string) (*ShipmentResponse, error) {
	shipmentID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid shipment id: %w", err)
	}
	if !model.ValidShipmentStatus(next) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	var shipment *model.Shipment
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		shipment, findErr = s.shipmentRepo.FindByID(txCtx, shipmentID)
		if findErr != nil {
			return fmt.Errorf("%w: %s", ErrShipmentNotFound, id)
		}

		if !model.CanTransitionShipment(shipment.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, shipment.Status, next)
		}

		previous := shipment.Status
		now := time.Now()
		shipment.Status = next
		switch next {
		case model.ShipmentStatusInTransit:
			shipment.DispatchedAt = &now
		case model.ShipmentStatusDelivered:
			if shipment.DispatchedAt == nil {
				shipment.DispatchedAt = &now
			}
			shipment.DeliveredAt = &now
		}

		if saveErr := s.shipmentRepo.Update(txCtx, shipment); saveErr != nil {
			return fmt.Errorf("failed to update shipment status: %w", saveErr)
		}

		return s.logAudit(txCtx, userID, model.ActionAdvanceShipment, shipment.ID.String(), shipment.TrackingNumber, map[string]interface{}{
			"from": previous,
			"to":   next,
		})
	})
	if err != nil {
		return nil, err
	}

	s.hub.Notify(ws.TableShipments, ws.EventUpdate, shipment)

	return s.loadResponse(ctx, shipmentID)
}

// DeleteShipment hard-deletes a shipment and its manifest assignments. The
// manifests stay CLOSED: closing is automatic on assignment but reopening is
// not, a known asymmetry kept on purpose.
func (s *shipmentService) DeleteShipment(ctx context.Context, userID, id string) error {
	shipmentID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid shipment id: %w", err)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		shipment, findErr := s.shipmentRepo.FindByID(txCtx, shipmentID)
		if findErr != nil {
			return fmt.Errorf("%w: %s", ErrShipmentNotFound, id)
		}

		if unlinkErr := s.shipmentRepo.UnlinkAll(txCtx, shipmentID); unlinkErr != nil {
			return fmt.Errorf("failed to unlink manifests: %w", unlinkErr)
		}
		if delErr := s.shipmentRepo.Delete(txCtx, shipmentID); delErr != nil {
			return fmt.Errorf("failed to delete shipment: %w", delErr)
		}

		return s.logAudit(txCtx, userID, model.ActionDeleteShipment, shipment.ID.String(), shipment.TrackingNumber, map[string]interface{}{
			"status": shipment.Status,
		})
	})
	if err != nil {
		return err
	}

	s.hub.Notify(ws.TableShipments, ws.EventDelete, map[string]interface{}{"id": id})
	return nil
}

func (s *shipmentService) GetShipment(ctx context.Context, id string) (*ShipmentResponse, error) {
	shipmentID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid shipment id: %w", err)
	}
	resp, err := s.loadResponse(ctx, shipmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrShipmentNotFound, id)
		}
		return nil, err
	}
	return resp, nil
}

func (s *shipmentService) ListShipments(ctx context.Context, page, limit int, status string) ([]ShipmentResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	shipments, total, err := s.shipmentRepo.List(ctx, page, limit, status)
	if err != nil {
		return nil, 0, err
	}

	res := make([]ShipmentResponse, 0, len(shipments))
	for i := range shipments {
		ids, idsErr := s.shipmentRepo.ManifestIDs(ctx, shipments[i].ID)
		if idsErr != nil {
			return nil, 0, idsErr
		}
		res = append(res, toShipmentResponse(shipments[i], ids))
	}

	return res, total, nil
}

// --- Helpers ---

func (s *shipmentService) loadResponse(ctx context.Context, id uuid.UUID) (*ShipmentResponse, error) {
	shipment, err := s.shipmentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload shipment: %w", err)
	}
	ids, err := s.shipmentRepo.ManifestIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load shipment manifests: %w", err)
	}
	resp := toShipmentResponse(*shipment, ids)
	return &resp, nil
}

func (s *shipmentService) logAudit(ctx context.Context, userID, action, entityID, entityName string, payload map[string]interface{}) error {
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

// generateTrackingNumber builds a human-readable tracking number: the dispatch
// date plus the low-order nanosecond digits of the creation instant. Practically
// unique without a central counter.
func generateTrackingNumber(now time.Time) string {
	return fmt.Sprintf("SHIP-%d-%02d-%02d-%06d",
		now.Year(), int(now.Month()), now.Day(), now.UnixNano()%1_000_000)
}

func toShipmentResponse(sh model.Shipment, manifestIDs []uuid.UUID) ShipmentResponse {
	resp := ShipmentResponse{
		ID:             sh.ID.String(),
		TrackingNumber: sh.TrackingNumber,
		Destination:    sh.Destination,
		Status:         sh.Status,
		TotalWeight:    sh.TotalWeight,
		TotalManifests: sh.TotalManifests,
		Observations:   sh.Observations,
		ManifestIDs:    make([]string, 0, len(manifestIDs)),
		CreatedAt:      sh.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      sh.UpdatedAt.Format(time.RFC3339),
	}
	for _, id := range manifestIDs {
		resp.ManifestIDs = append(resp.ManifestIDs, id.String())
	}
	if sh.DispatchedAt != nil {
		v := sh.DispatchedAt.Format(time.RFC3339)
		resp.DispatchedAt = &v
	}
	if sh.DeliveredAt != nil {
		v := sh.DeliveredAt.Format(time.RFC3339)
		resp.DeliveredAt = &v
	}
	return resp
}
