package model

import "time"

// DestinationRanking is one row of the top-destinations board.
type DestinationRanking struct {
	Destination   string  `json:"destination"`
	ManifestCount int64   `json:"manifest_count"`
	TotalWeight   float64 `json:"total_weight"`
}

// StatisticsResponse is the consolidation dashboard snapshot.
type StatisticsResponse struct {
	TimeRangeStartDate time.Time `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time `json:"time_range_end_date"`

	AvailableBatches  int64 `json:"available_batches"`
	IncompleteBatches int64 `json:"incomplete_batches"`
	RetiredBatches    int64 `json:"retired_batches"`

	OpenManifests      int64 `json:"open_manifests"`
	PendingShipments   int64 `json:"pending_shipments"`
	InTransitShipments int64 `json:"in_transit_shipments"`

	WeightConsolidatedToday float64 `json:"weight_consolidated_today"`
	WeightDispatched        float64 `json:"weight_dispatched"`

	TopDestinations []DestinationRanking `json:"top_destinations"`
}
