package model

// shipmentTransitions is the forward-only dispatch state machine. DELIVERED and
// CANCELLED are terminal.
var shipmentTransitions = map[string][]string{
	ShipmentStatusPending:   {ShipmentStatusInTransit, ShipmentStatusCancelled},
	ShipmentStatusInTransit: {ShipmentStatusDelivered, ShipmentStatusCancelled},
	ShipmentStatusDelivered: nil,
	ShipmentStatusCancelled: nil,
}

// batchTransitions: shortage resolution moves INCOMPLETE to AVAILABLE,
// consolidation moves AVAILABLE to RETIRED. There is no un-retirement.
var batchTransitions = map[string][]string{
	BatchStatusIncomplete: {BatchStatusAvailable},
	BatchStatusAvailable:  {BatchStatusRetired},
	BatchStatusRetired:    nil,
}

// CanTransitionShipment reports whether a shipment may move from one status to
// another.
func CanTransitionShipment(from, to string) bool {
	for _, next := range shipmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionBatch reports whether a batch may move from one status to another.
func CanTransitionBatch(from, to string) bool {
	for _, next := range batchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalShipmentStatus reports whether no further transitions exist.
func IsTerminalShipmentStatus(status string) bool {
	next, known := shipmentTransitions[status]
	return known && len(next) == 0
}

// ValidShipmentStatus reports whether the value is one of the known statuses.
func ValidShipmentStatus(status string) bool {
	_, ok := shipmentTransitions[status]
	return ok
}
