package engine

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"fruitchain/repository"
	"fruitchain/repository/models"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Reconciler periodically scans unresolved divergence tasks and repairs
// the mirror from a fresh on-chain read. The ledger is authoritative:
// repair always copies ledger state into the mirror, never the reverse.
type Reconciler struct {
	chain    Chain
	store    Store
	logger   cmtlog.Logger
	interval time.Duration
}

// NewReconciler creates a reconciler sweeping at the given interval
func NewReconciler(chain Chain, store Store, interval time.Duration, logger cmtlog.Logger) *Reconciler {
	return &Reconciler{chain: chain, store: store, logger: logger, interval: interval}
}

// Run sweeps until the context is cancelled
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("Reconciliation sweep failed", "err", err)
			}
		}
	}
}

// Sweep repairs up to one batch of pending tasks
func (r *Reconciler) Sweep(ctx context.Context) error {
	tasks, repoErr := r.store.PendingSyncTasks(50)
	if repoErr != nil {
		return repoErr
	}

	for _, task := range tasks {
		if err := r.repair(ctx, task); err != nil {
			r.logger.Error("Failed to repair divergence",
				"task_id", task.ID, "kind", task.Kind, "target", task.TargetID, "err", err)
			continue
		}
		if repoErr := r.store.ResolveSyncTask(task.ID); repoErr != nil {
			r.logger.Error("Repaired but failed to resolve task", "task_id", task.ID, "err", repoErr)
			continue
		}
		reconciledTotal.Inc()
		r.logger.Info("Divergence repaired", "task_id", task.ID, "kind", task.Kind, "target", task.TargetID)
	}
	return nil
}

func (r *Reconciler) repair(ctx context.Context, task models.SyncTask) error {
	switch task.Kind {
	case models.SyncKindListing:
		return r.repairListing(ctx, task)
	case models.SyncKindPurchase:
		return r.repairPurchase(task)
	case models.SyncKindReceipt:
		return r.repairReceipt(task)
	case models.SyncKindFarm:
		return r.repairFarm(ctx, task)
	default:
		r.logger.Error("Unknown sync task kind, resolving without repair", "kind", task.Kind)
		return nil
	}
}

func (r *Reconciler) repairListing(ctx context.Context, task models.SyncTask) error {
	// the payload may describe either a listing row or a fruit-id link
	var link struct {
		InventoryID string  `json:"inventory_id"`
		FruitID     *uint64 `json:"fruit_id"`
	}
	if err := json.Unmarshal([]byte(task.Payload), &link); err == nil && link.FruitID != nil && link.InventoryID != "" {
		repoErr := r.store.SetInventoryFruitID(link.InventoryID, *link.FruitID)
		if repoErr != nil && repoErr.Code != repository.ErrCodeInvalidState {
			return repoErr
		}
		return nil
	}

	listingID, err := strconv.ParseUint(task.TargetID, 10, 64)
	if err != nil {
		return err
	}
	listed, err := r.chain.GetListedProduct(ctx, listingID)
	if err != nil {
		return err
	}

	var intended models.Listing
	_ = json.Unmarshal([]byte(task.Payload), &intended)
	listing := &models.Listing{
		ListingID:   listed.ListingID,
		LotID:       listed.LotID,
		InventoryID: intended.InventoryID,
		Price:       listed.Price,
		Quantity:    listed.Quantity,
		IsActive:    listed.IsActive,
		TxHash:      task.ConfirmationRef,
	}
	if repoErr := r.store.UpsertListing(listing); repoErr != nil {
		return repoErr
	}
	return nil
}

func (r *Reconciler) repairPurchase(task models.SyncTask) error {
	var order models.PurchaseOrder
	if err := json.Unmarshal([]byte(task.Payload), &order); err != nil {
		return err
	}
	if order.ID != "" {
		if repoErr := r.store.CreateOrder(&order); repoErr != nil && repoErr.Code != repository.PgErrUniqueViolation {
			return repoErr
		}
		return nil
	}

	// shipment lifecycle intent, keyed by shipment id or by the stock
	// row the listing drew from
	var shipIntent struct {
		ShipmentID  string `json:"shipment_id"`
		InventoryID string `json:"inventory_id"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal([]byte(task.Payload), &shipIntent); err == nil && shipIntent.Status != "" {
		if shipIntent.ShipmentID != "" {
			return r.orNil(r.store.UpdateShipmentStatus(shipIntent.ShipmentID, shipIntent.Status))
		}
		shipment, repoErr := r.store.GetShipmentByInventoryID(shipIntent.InventoryID, models.ShipmentListed)
		if repoErr != nil {
			if repoErr.Code == repository.ErrCodeEntityNotFound {
				return nil
			}
			return repoErr
		}
		return r.orNil(r.store.UpdateShipmentStatus(shipment.ID, shipIntent.Status))
	}

	// listing quantity intent
	var intent struct {
		ListingID uint64 `json:"listing_id"`
		Quantity  uint64 `json:"quantity"`
		IsActive  bool   `json:"is_active"`
	}
	if err := json.Unmarshal([]byte(task.Payload), &intent); err != nil {
		return err
	}
	if repoErr := r.store.UpdateListingQuantity(intent.ListingID, intent.Quantity, intent.IsActive); repoErr != nil {
		return repoErr
	}
	return nil
}

func (r *Reconciler) repairReceipt(task models.SyncTask) error {
	if repoErr := r.store.UpdateShipmentStatus(task.TargetID, models.ShipmentReceived); repoErr != nil {
		return repoErr
	}
	return nil
}

func (r *Reconciler) repairFarm(ctx context.Context, task models.SyncTask) error {
	var farm models.Farm
	if err := json.Unmarshal([]byte(task.Payload), &farm); err != nil {
		return err
	}
	if farm.ID == "" {
		farm.ID = task.TargetID
	}

	// a thin payload is rebuilt from the authoritative ledger record
	if farm.Location == "" {
		data, err := r.chain.GetFarmData(ctx, farm.ID)
		if err != nil {
			return err
		}
		farm.Location = data.Location
		farm.Climate = data.Climate
		farm.Soil = data.Soil
		farm.Conditions = data.Conditions
		farm.OwnerAddress = data.Owner
	}
	farm.OnLedger = true

	if repoErr := r.store.CreateFarm(&farm); repoErr != nil {
		if repoErr.Code == repository.PgErrUniqueViolation {
			return r.orNil(r.store.MarkFarmOnLedger(farm.ID))
		}
		return repoErr
	}
	return nil
}

func (r *Reconciler) orNil(repoErr *repository.RepositoryError) error {
	if repoErr != nil {
		return repoErr
	}
	return nil
}
