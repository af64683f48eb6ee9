package websocket

import (
	"encoding/json"
	"log"
)

// Change event tables
const (
	TableBatches   = "batches"
	TableManifests = "manifests"
	TableShipments = "shipments"
)

// Change event types
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// ChangeEvent is the notification contract: subscribers re-query whichever
// views touch the named table, they never patch cached state from Record.
type ChangeEvent struct {
	Table     string      `json:"table"`
	EventType string      `json:"event_type"`
	Record    interface{} `json:"record"`
}

// Notify broadcasts a change event after a committed mutation. Fire-and-forget:
// it is safe on a nil hub and never blocks the mutating request.
func (h *Hub) Notify(table, eventType string, record interface{}) {
	if h == nil {
		return
	}

	payload, err := json.Marshal(ChangeEvent{Table: table, EventType: eventType, Record: record})
	if err != nil {
		log.Printf("websocket: failed to encode %s change event: %v", table, err)
		return
	}

	select {
	case h.Broadcast <- payload:
	default:
		log.Printf("websocket: dropping %s change event, broadcast queue full", table)
	}
}
