package engine

import (
	"slices"

	"fruitchain/repository/models"
)

// Legal shipment transitions:
// incoming -> received -> inventoried -> listed -> (outgoing | sold)
var shipmentTransitions = map[string][]string{
	models.ShipmentIncoming:    {models.ShipmentReceived},
	models.ShipmentReceived:    {models.ShipmentInventoried},
	models.ShipmentInventoried: {models.ShipmentListed},
	models.ShipmentListed:      {models.ShipmentOutgoing, models.ShipmentSold},
}

// Legal purchase order transitions:
// pending -> (shipped | cancelled), shipped -> delivered
var orderTransitions = map[string][]string{
	models.OrderPending: {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped: {models.OrderDelivered},
}

// ShipmentTransition validates a shipment lifecycle step
func ShipmentTransition(current, next string) error {
	if slices.Contains(shipmentTransitions[current], next) {
		return nil
	}
	return &InvalidTransitionError{Entity: "shipment", From: current, To: next}
}

// OrderTransition validates a purchase order lifecycle step
func OrderTransition(current, next string) error {
	if slices.Contains(orderTransitions[current], next) {
		return nil
	}
	return &InvalidTransitionError{Entity: "order", From: current, To: next}
}
