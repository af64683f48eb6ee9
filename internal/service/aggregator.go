package service

import (
	"backend/internal/model"
	"backend/pkg/normalize"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLabel marks line items produced for stock rather than a client.
const StockLabel = "Stock"

// finishedStatusKeys are the normalized spellings that count as "finished".
// Legacy rows carry the Spanish statuses; new rows carry the canonical enum.
var finishedStatusKeys = map[string]bool{
	"terminado":  true,
	"finalizado": true,
	"completo":   true,
	"available":  true,
}

// LineItemDraft is one aggregated manifest row before persistence.
type LineItemDraft struct {
	BatchID     uuid.UUID
	ProductName string
	Weight      decimal.Decimal
	BatchCount  int
	LotLabel    string
	SourceLabel string
}

// AggregateBatches filters the batches eligible for the destination and groups
// them into manifest line drafts. Pure and deterministic: no side effects, the
// same input always yields the same drafts, and an empty result is an empty
// slice, not an error.
//
// The group key is (batch id, source label). Each batch therefore maps to one
// draft today; the compound key keeps the door open for SKU-level grouping
// without changing callers.
func AggregateBatches(batches []model.ProductionBatch, destination string) []LineItemDraft {
	destKey := normalize.Key(destination)

	type groupKey struct {
		batchID uuid.UUID
		label   string
	}
	index := make(map[groupKey]int)
	drafts := make([]LineItemDraft, 0)

	for _, b := range batches {
		if !batchEligible(b, destKey) {
			continue
		}

		label := sourceLabel(b)
		k := groupKey{batchID: b.ID, label: label}
		if i, ok := index[k]; ok {
			drafts[i].Weight = drafts[i].Weight.Add(b.Weight)
			drafts[i].BatchCount++
			continue
		}

		index[k] = len(drafts)
		drafts = append(drafts, LineItemDraft{
			BatchID:     b.ID,
			ProductName: b.Name,
			Weight:      b.Weight,
			BatchCount:  1,
			LotLabel:    b.ID.String(),
			SourceLabel: label,
		})
	}

	return drafts
}

func batchEligible(b model.ProductionBatch, destKey string) bool {
	if !finishedStatusKeys[normalize.Key(b.Status)] {
		return false
	}
	key := b.DestinationKey
	if key == "" {
		key = normalize.Key(b.Destination)
	}
	return key == destKey
}

func sourceLabel(b model.ProductionBatch) string {
	if b.ProductionType == model.ProductionTypeClient && b.ClientName != "" {
		return b.ClientName
	}
	return StockLabel
}

// MergeLineItems folds freshly aggregated drafts into a manifest's current line
// items. Lines written by earlier generations stay (their batches are retired
// and will not re-aggregate); a draft matching an existing (batch, source label)
// line overwrites it, so retrying a generation whose retirement stage failed
// changes nothing. Returns the merged set in stable order and its total weight.
func MergeLineItems(current []model.ManifestLineItem, drafts []LineItemDraft) ([]model.ManifestLineItem, decimal.Decimal) {
	type lineKey struct {
		batchID uuid.UUID
		label   string
	}
	index := make(map[lineKey]int, len(current))
	merged := make([]model.ManifestLineItem, 0, len(current)+len(drafts))

	for _, li := range current {
		li.ID = uuid.Nil // the whole set is rewritten as fresh rows
		index[lineKey{li.BatchID, li.SourceLabel}] = len(merged)
		merged = append(merged, li)
	}

	for _, d := range drafts {
		k := lineKey{d.BatchID, d.SourceLabel}
		if i, ok := index[k]; ok {
			merged[i].ProductName = d.ProductName
			merged[i].Weight = d.Weight
			merged[i].BatchCount = d.BatchCount
			merged[i].LotLabel = d.LotLabel
			continue
		}
		index[k] = len(merged)
		merged = append(merged, model.ManifestLineItem{
			BatchID:     d.BatchID,
			ProductName: d.ProductName,
			Weight:      d.Weight,
			BatchCount:  d.BatchCount,
			LotLabel:    d.LotLabel,
			SourceLabel: d.SourceLabel,
		})
	}

	total := decimal.Zero
	for _, li := range merged {
		total = total.Add(li.Weight)
	}
	return merged, total
}

// draftTotal sums the draft weights; by construction it equals the sum of the
// contributing batch weights.
func draftTotal(drafts []LineItemDraft) decimal.Decimal {
	total := decimal.Zero
	for _, d := range drafts {
		total = total.Add(d.Weight)
	}
	return total
}

// draftBatchIDs returns the distinct ids of every contributing batch, in draft
// order. This captured set, not a re-query, is what retirement operates on.
func draftBatchIDs(drafts []LineItemDraft) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(drafts))
	ids := make([]uuid.UUID, 0, len(drafts))
	for _, d := range drafts {
		if seen[d.BatchID] {
			continue
		}
		seen[d.BatchID] = true
		ids = append(ids, d.BatchID)
	}
	return ids
}
