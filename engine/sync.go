package engine

import (
	"encoding/json"
	"fmt"

	"fruitchain/repository"
	"fruitchain/repository/models"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Synchronizer propagates confirmed ledger effects into the mirror
// store. It is the only writer of mirrored fields. Every method is
// invoked only after the corresponding gateway call confirmed; a mirror
// write failure therefore never retries the on-chain call (that would
// double-list or double-spend) and instead surfaces a SyncDivergence
// carrying the confirmation reference and the intended mirror values.
type Synchronizer struct {
	store  Store
	logger cmtlog.Logger
}

// NewSynchronizer creates a synchronizer over the mirror store
func NewSynchronizer(store Store, logger cmtlog.Logger) *Synchronizer {
	return &Synchronizer{store: store, logger: logger}
}

// divergence enqueues a reconciliation task (best effort, the store may
// be the thing that is down) and returns the divergence error
func (s *Synchronizer) divergence(kind, targetID, confirmationRef string, intent any, cause error) error {
	divergencesTotal.Inc()

	payload, err := json.Marshal(intent)
	if err != nil {
		payload = []byte("{}")
	}
	task := &models.SyncTask{
		Kind:            kind,
		TargetID:        targetID,
		ConfirmationRef: confirmationRef,
		Payload:         string(payload),
	}
	if repoErr := s.store.EnqueueSyncTask(task); repoErr != nil {
		s.logger.Error("Failed to enqueue reconciliation task, divergence only surfaced to caller",
			"kind", kind, "target", targetID, "confirmation_ref", confirmationRef, "err", repoErr)
	} else {
		s.logger.Error("Mirror diverged from ledger, reconciliation task enqueued",
			"kind", kind, "target", targetID, "confirmation_ref", confirmationRef, "task_id", task.ID)
	}

	return &SyncDivergenceError{
		Kind:            kind,
		TargetID:        targetID,
		ConfirmationRef: confirmationRef,
		Intent:          intent,
		Cause:           cause,
	}
}

// RecordListing upserts the listing mirror row after a confirmed
// listProductForSale call
func (s *Synchronizer) RecordListing(listing *models.Listing) error {
	if repoErr := s.store.UpsertListing(listing); repoErr != nil {
		return s.divergence(models.SyncKindListing, fmt.Sprint(listing.ListingID), listing.TxHash, listing, repoErr)
	}
	return nil
}

// LinkInventoryLot writes the ledger-assigned lot id onto the inventory
// row, the unset-to-set-once transition of the fruit id field
func (s *Synchronizer) LinkInventoryLot(inventoryID string, lotID uint64, confirmationRef string) error {
	if repoErr := s.store.SetInventoryFruitID(inventoryID, lotID); repoErr != nil {
		intent := map[string]any{"inventory_id": inventoryID, "fruit_id": lotID}
		return s.divergence(models.SyncKindListing, inventoryID, confirmationRef, intent, repoErr)
	}
	return nil
}

// RecordPurchase creates the order mirror row and updates the mirrored
// listing quantity after a confirmed purchase call. remaining is the
// quantity the listing still holds on the ledger.
func (s *Synchronizer) RecordPurchase(order *models.PurchaseOrder, remaining uint64, confirmationRef string) error {
	if repoErr := s.store.CreateOrder(order); repoErr != nil {
		return s.divergence(models.SyncKindPurchase, order.ID, confirmationRef, order, repoErr)
	}
	if repoErr := s.store.UpdateListingQuantity(order.ListingID, remaining, remaining > 0); repoErr != nil {
		intent := map[string]any{"listing_id": order.ListingID, "quantity": remaining, "is_active": remaining > 0}
		return s.divergence(models.SyncKindPurchase, order.ID, confirmationRef, intent, repoErr)
	}
	return s.markShipmentSold(order, confirmationRef)
}

// markShipmentSold carries the confirmed sale through to the inbound
// shipment that stocked the listing. A listing stocked without a
// mirrored shipment has nothing to advance.
func (s *Synchronizer) markShipmentSold(order *models.PurchaseOrder, confirmationRef string) error {
	listing, repoErr := s.store.GetListing(order.ListingID)
	if repoErr != nil || listing.InventoryID == nil {
		return nil
	}
	shipment, repoErr := s.store.GetShipmentByInventoryID(*listing.InventoryID, models.ShipmentListed)
	if repoErr != nil {
		if repoErr.Code == repository.ErrCodeEntityNotFound {
			return nil
		}
		intent := map[string]any{"inventory_id": *listing.InventoryID, "status": models.ShipmentSold}
		return s.divergence(models.SyncKindPurchase, order.ID, confirmationRef, intent, repoErr)
	}
	if repoErr := s.store.UpdateShipmentStatus(shipment.ID, models.ShipmentSold); repoErr != nil {
		intent := map[string]any{"shipment_id": shipment.ID, "status": models.ShipmentSold}
		return s.divergence(models.SyncKindPurchase, order.ID, confirmationRef, intent, repoErr)
	}
	return nil
}

// RecordReceipt advances the shipment to received
func (s *Synchronizer) RecordReceipt(shipmentID, confirmationRef string) error {
	if repoErr := s.store.UpdateShipmentStatus(shipmentID, models.ShipmentReceived); repoErr != nil {
		intent := map[string]any{"shipment_id": shipmentID, "status": models.ShipmentReceived}
		return s.divergence(models.SyncKindReceipt, shipmentID, confirmationRef, intent, repoErr)
	}
	return nil
}

// RecordFarm mirrors a farm registered on the ledger
func (s *Synchronizer) RecordFarm(farm *models.Farm, confirmationRef string) error {
	farm.OnLedger = true
	if repoErr := s.store.CreateFarm(farm); repoErr != nil {
		if repoErr.Code == repository.PgErrUniqueViolation {
			// mirror row already present, flag it and move on
			if markErr := s.store.MarkFarmOnLedger(farm.ID); markErr == nil {
				return nil
			}
		}
		return s.divergence(models.SyncKindFarm, farm.ID, confirmationRef, farm, repoErr)
	}
	return nil
}
