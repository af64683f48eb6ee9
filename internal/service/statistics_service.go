package service

import (
	"context"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// GetStatistics assembles the consolidation dashboard: pool composition,
// open-manifest and shipment counts, consolidated and dispatched weight, and
// the busiest destinations in the requested window.
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error) {
	var response model.StatisticsResponse
	response.TimeRangeStartDate = startDate
	response.TimeRangeEndDate = endDate

	// Pool composition
	s.db.WithContext(ctx).Model(&model.ProductionBatch{}).
		Where("status = ?", model.BatchStatusAvailable).
		Count(&response.AvailableBatches)
	s.db.WithContext(ctx).Model(&model.ProductionBatch{}).
		Where("status = ?", model.BatchStatusIncomplete).
		Count(&response.IncompleteBatches)
	s.db.WithContext(ctx).Model(&model.ProductionBatch{}).
		Where("status = ?", model.BatchStatusRetired).
		Count(&response.RetiredBatches)

	// Live documents
	s.db.WithContext(ctx).Model(&model.Manifest{}).
		Where("status = ?", model.ManifestStatusOpen).
		Count(&response.OpenManifests)
	s.db.WithContext(ctx).Model(&model.Shipment{}).
		Where("status = ?", model.ShipmentStatusPending).
		Count(&response.PendingShipments)
	s.db.WithContext(ctx).Model(&model.Shipment{}).
		Where("status = ?", model.ShipmentStatusInTransit).
		Count(&response.InTransitShipments)

	// Weight consolidated into manifests dated today
	var consolidated struct {
		Value float64
	}
	s.db.WithContext(ctx).Model(&model.Manifest{}).
		Select("COALESCE(SUM(total_weight), 0) as value").
		Where("manifest_date = ?", model.DateOnly(time.Now())).
		Scan(&consolidated)
	response.WeightConsolidatedToday = consolidated.Value

	// Weight dispatched in the requested window
	var dispatched struct {
		Value float64
	}
	s.db.WithContext(ctx).Model(&model.Shipment{}).
		Select("COALESCE(SUM(total_weight), 0) as value").
		Where("status IN ?", []string{model.ShipmentStatusInTransit, model.ShipmentStatusDelivered}).
		Where("dispatched_at >= ? AND dispatched_at <= ?", startDate, endDate).
		Scan(&dispatched)
	response.WeightDispatched = dispatched.Value

	// Busiest destinations by manifest count in the window
	var top []model.DestinationRanking
	s.db.WithContext(ctx).Model(&model.Manifest{}).
		Select("destination, COUNT(*) as manifest_count, COALESCE(SUM(total_weight), 0) as total_weight").
		Where("manifest_date >= ? AND manifest_date <= ?", model.DateOnly(startDate), model.DateOnly(endDate)).
		Group("destination").
		Order("manifest_count DESC").
		Limit(5).
		Scan(&top)
	response.TopDestinations = top

	return response, nil
}
