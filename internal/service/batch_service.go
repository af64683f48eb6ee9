package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateBatchRequest struct {
	Name           string  `json:"name" binding:"required"`
	Weight         float64 `json:"weight" binding:"required,gt=0"`
	Destination    string  `json:"destination" binding:"required"`
	ProductionType string  `json:"production_type" binding:"required,oneof=STOCK CLIENT"`
	ClientName     string  `json:"client_name"`
	ProductionDate string  `json:"production_date"` // YYYY-MM-DD
	HasShortages   bool    `json:"has_shortages"`
}

type UpdateBatchRequest struct {
	Name           *string  `json:"name"`
	Weight         *float64 `json:"weight" binding:"omitempty,gt=0"`
	Destination    *string  `json:"destination"`
	ProductionType *string  `json:"production_type" binding:"omitempty,oneof=STOCK CLIENT"`
	ClientName     *string  `json:"client_name"`
	ProductionDate *string  `json:"production_date"`
	Status         *string  `json:"status" binding:"omitempty,oneof=INCOMPLETE AVAILABLE"`
}

type BatchResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Weight         decimal.Decimal `json:"weight"`
	Status         string          `json:"status"`
	Destination    string          `json:"destination"`
	ProductionType string          `json:"production_type"`
	ClientName     string          `json:"client_name"`
	ProductionDate string          `json:"production_date,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// --- Interface ---

type BatchService interface {
	CreateBatch(ctx context.Context, userID string, req CreateBatchRequest) (*BatchResponse, error)
	UpdateBatch(ctx context.Context, userID, id string, req UpdateBatchRequest) (*BatchResponse, error)
	DeleteBatch(ctx context.Context, userID, id string) error
	GetBatch(ctx context.Context, id string) (*BatchResponse, error)
	ListBatches(ctx context.Context, page, limit int, status, destination string) ([]BatchResponse, int64, error)
	// ResolveShortages moves a shortage-flagged batch into the consolidation
	// pool once its missing units are accounted for.
	ResolveShortages(ctx context.Context, userID, id string) (*BatchResponse, error)
}

type batchService struct {
	batchRepo repository.BatchRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	hub       *ws.Hub
}

func NewBatchService(batchRepo repository.BatchRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager, hub *ws.Hub) BatchService {
	return &batchService{batchRepo: batchRepo, auditRepo: auditRepo, txManager: txManager, hub: hub}
}

// --- Implementation ---

func (s *batchService) CreateBatch(ctx context.Context, userID string, req CreateBatchRequest) (*BatchResponse, error) {
	status := model.BatchStatusAvailable
	if req.HasShortages {
		status = model.BatchStatusIncomplete
	}

	batch := &model.ProductionBatch{
		Name:           req.Name,
		Weight:         decimal.NewFromFloat(req.Weight),
		Status:         status,
		Destination:    req.Destination,
		ProductionType: req.ProductionType,
		ClientName:     req.ClientName,
	}

	if req.ProductionDate != "" {
		d, err := time.Parse(time.DateOnly, req.ProductionDate)
		if err != nil {
			return nil, fmt.Errorf("invalid production date: %w", err)
		}
		batch.ProductionDate = &d
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.batchRepo.Create(txCtx, batch); createErr != nil {
			return fmt.Errorf("failed to create batch: %w", createErr)
		}
		return s.logAudit(txCtx, userID, model.ActionCreateBatch, batch.ID.String(), batch.Name, map[string]interface{}{
			"status":      batch.Status,
			"destination": batch.Destination,
			"weight":      batch.Weight.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.hub.Notify(ws.TableBatches, ws.EventInsert, batch)

	resp := toBatchResponse(*batch)
	return &resp, nil
}

func (s *batchService) UpdateBatch(ctx context.Context, userID, id string, req UpdateBatchRequest) (*BatchResponse, error) {
	batchID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid batch id: %w", err)
	}

	var batch *model.ProductionBatch
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		batch, findErr = s.batchRepo.FindByID(txCtx, batchID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
			}
			return findErr
		}

		// Retired batches are frozen history; their manifests reference them.
		if batch.Status == model.BatchStatusRetired {
			return fmt.Errorf("%w: batch %s is retired", ErrInvalidTransition, id)
		}

		if req.Name != nil {
			batch.Name = *req.Name
		}
		if req.Weight != nil {
			batch.Weight = decimal.NewFromFloat(*req.Weight)
		}
		if req.Destination != nil {
			batch.Destination = *req.Destination
		}
		if req.ProductionType != nil {
			batch.ProductionType = *req.ProductionType
		}
		if req.ClientName != nil {
			batch.ClientName = *req.ClientName
		}
		if req.ProductionDate != nil {
			if *req.ProductionDate == "" {
				batch.ProductionDate = nil
			} else {
				d, parseErr := time.Parse(time.DateOnly, *req.ProductionDate)
				if parseErr != nil {
					return fmt.Errorf("invalid production date: %w", parseErr)
				}
				batch.ProductionDate = &d
			}
		}
		if req.Status != nil && *req.Status != batch.Status {
			if !model.CanTransitionBatch(batch.Status, *req.Status) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, batch.Status, *req.Status)
			}
			batch.Status = *req.Status
		}

		if updateErr := s.batchRepo.Update(txCtx, batch); updateErr != nil {
			return fmt.Errorf("failed to update batch: %w", updateErr)
		}
		return s.logAudit(txCtx, userID, model.ActionUpdateBatch, batch.ID.String(), batch.Name, map[string]interface{}{
			"status":      batch.Status,
			"destination": batch.Destination,
		})
	})
	if err != nil {
		return nil, err
	}

	s.hub.Notify(ws.TableBatches, ws.EventUpdate, batch)

	resp := toBatchResponse(*batch)
	return &resp, nil
}

func (s *batchService) DeleteBatch(ctx context.Context, userID, id string) error {
	batchID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid batch id: %w", err)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		batch, findErr := s.batchRepo.FindByID(txCtx, batchID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
			}
			return findErr
		}
		if batch.Status == model.BatchStatusRetired {
			return fmt.Errorf("%w: batch %s is retired", ErrInvalidTransition, id)
		}

		if delErr := s.batchRepo.Delete(txCtx, batchID); delErr != nil {
			return fmt.Errorf("failed to delete batch: %w", delErr)
		}
		return s.logAudit(txCtx, userID, model.ActionDeleteBatch, batch.ID.String(), batch.Name, nil)
	})
	if err != nil {
		return err
	}

	s.hub.Notify(ws.TableBatches, ws.EventDelete, map[string]interface{}{"id": id})
	return nil
}

func (s *batchService) GetBatch(ctx context.Context, id string) (*BatchResponse, error) {
	batchID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid batch id: %w", err)
	}

	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}

	resp := toBatchResponse(*batch)
	return &resp, nil
}

func (s *batchService) ListBatches(ctx context.Context, page, limit int, status, destination string) ([]BatchResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	batches, total, err := s.batchRepo.List(ctx, page, limit, status, destination)
	if err != nil {
		return nil, 0, err
	}

	res := make([]BatchResponse, 0, len(batches))
	for i := range batches {
		res = append(res, toBatchResponse(batches[i]))
	}
	return res, total, nil
}

func (s *batchService) ResolveShortages(ctx context.Context, userID, id string) (*BatchResponse, error) {
	batchID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid batch id: %w", err)
	}

	var batch *model.ProductionBatch
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		batch, findErr = s.batchRepo.FindByID(txCtx, batchID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
			}
			return findErr
		}

		if !model.CanTransitionBatch(batch.Status, model.BatchStatusAvailable) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, batch.Status, model.BatchStatusAvailable)
		}
		batch.Status = model.BatchStatusAvailable

		if updateErr := s.batchRepo.Update(txCtx, batch); updateErr != nil {
			return fmt.Errorf("failed to resolve shortages: %w", updateErr)
		}
		return s.logAudit(txCtx, userID, model.ActionResolveShortages, batch.ID.String(), batch.Name, nil)
	})
	if err != nil {
		return nil, err
	}

	s.hub.Notify(ws.TableBatches, ws.EventUpdate, batch)

	resp := toBatchResponse(*batch)
	return &resp, nil
}

// --- Helpers ---

func (s *batchService) logAudit(ctx context.Context, userID, action, entityID, entityName string, payload map[string]interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}

	details := "{}"
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			details = string(b)
		} else {
			log.Printf("audit: failed to encode details for %s: %v", action, err)
		}
	}

	entry := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    details,
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func toBatchResponse(b model.ProductionBatch) BatchResponse {
	resp := BatchResponse{
		ID:             b.ID.String(),
		Name:           b.Name,
		Weight:         b.Weight,
		Status:         b.Status,
		Destination:    b.Destination,
		ProductionType: b.ProductionType,
		ClientName:     b.ClientName,
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.Format(time.RFC3339),
	}
	if b.ProductionDate != nil {
		resp.ProductionDate = b.ProductionDate.Format(time.DateOnly)
	}
	return resp
}
