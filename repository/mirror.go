package repository

import (
	"errors"
	"fmt"
	"time"

	"fruitchain/repository/models"

	"gorm.io/gorm"
)

// Farm rows

// CreateFarm stores a farm mirror row
func (r *Repository) CreateFarm(farm *models.Farm) *RepositoryError {
	dbTx := r.db.Begin()
	if err := dbTx.Create(farm).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// GetFarm returns a farm by id
func (r *Repository) GetFarm(farmID string) (*models.Farm, *RepositoryError) {
	var farm models.Farm
	err := r.db.Where("farm_id = ?", farmID).First(&farm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Farm does not exist", fmt.Sprintf("Farm with id %s does not exist", farmID))
		}
		return nil, wrapDBError(err)
	}
	return &farm, nil
}

// ListFarmsByOwner returns the farms owned by the given address
func (r *Repository) ListFarmsByOwner(ownerAddress string) ([]models.Farm, *RepositoryError) {
	var farms []models.Farm
	if err := r.db.Where("owner_address = ?", ownerAddress).Find(&farms).Error; err != nil {
		return nil, wrapDBError(err)
	}
	return farms, nil
}

// MarkFarmOnLedger flags the mirror row as registered on-chain
func (r *Repository) MarkFarmOnLedger(farmID string) *RepositoryError {
	res := r.db.Model(&models.Farm{}).Where("farm_id = ?", farmID).Update("on_ledger", true)
	if res.Error != nil {
		return wrapDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Farm does not exist", fmt.Sprintf("Farm with id %s does not exist", farmID))
	}
	return nil
}

// DeleteFarm removes a farm mirror row. A farm registered on the ledger
// may still be referenced by harvest lots and cannot be deleted.
func (r *Repository) DeleteFarm(farmID, ownerAddress string) *RepositoryError {
	dbTx := r.db.Begin()

	var farm models.Farm
	err := dbTx.Where("farm_id = ?", farmID).First(&farm).Error
	if err != nil {
		dbTx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("Farm does not exist", fmt.Sprintf("Farm with id %s does not exist", farmID))
		}
		return wrapDBError(err)
	}
	if farm.OwnerAddress != ownerAddress {
		dbTx.Rollback()
		return &RepositoryError{
			Code:    ErrCodeConflict,
			Message: "Farm is owned by a different address",
			Detail:  fmt.Sprintf("Farm %s belongs to %s", farmID, farm.OwnerAddress),
		}
	}
	if farm.OnLedger {
		dbTx.Rollback()
		return &RepositoryError{
			Code:    ErrCodeInvalidState,
			Message: "Farm is registered on the ledger",
			Detail:  "a registered farm may be referenced by harvest lots and cannot be deleted",
		}
	}

	if err := dbTx.Delete(&farm).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// Product rows

// GetProduct returns a product by id
func (r *Repository) GetProduct(productID string) (*models.Product, *RepositoryError) {
	var product models.Product
	err := r.db.Where("product_id = ?", productID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Product does not exist", fmt.Sprintf("Product with id %s does not exist", productID))
		}
		return nil, wrapDBError(err)
	}
	return &product, nil
}

// GetProductByFruitType returns the product mirroring a catalog entry
func (r *Repository) GetProductByFruitType(fruitType string) (*models.Product, *RepositoryError) {
	var product models.Product
	err := r.db.Where("fruit_type = ?", fruitType).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Product does not exist", fmt.Sprintf("No product for fruit type %s", fruitType))
		}
		return nil, wrapDBError(err)
	}
	return &product, nil
}

// UpsertProduct creates the product row on first reference. An existing
// row for the fruit type is left untouched, catalog entries are
// effectively immutable once created.
func (r *Repository) UpsertProduct(product *models.Product) *RepositoryError {
	var existing models.Product
	err := r.db.Where("fruit_type = ?", product.FruitType).First(&existing).Error
	if err == nil {
		*product = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapDBError(err)
	}
	if err := r.db.Create(product).Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// Inventory rows

// CreateInventoryItem stores a new stock row
func (r *Repository) CreateInventoryItem(item *models.InventoryItem) *RepositoryError {
	dbTx := r.db.Begin()
	if err := dbTx.Create(item).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// GetInventoryItem returns a stock row with its product preloaded
func (r *Repository) GetInventoryItem(inventoryID string) (*models.InventoryItem, *RepositoryError) {
	var item models.InventoryItem
	err := r.db.Preload("Product").Where("inventory_id = ?", inventoryID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Inventory item does not exist", fmt.Sprintf("Inventory item with id %s does not exist", inventoryID))
		}
		return nil, wrapDBError(err)
	}
	return &item, nil
}

// SetInventoryFruitID links a stock row to its ledger lot. The field
// transitions from unset to set exactly once.
func (r *Repository) SetInventoryFruitID(inventoryID string, fruitID uint64) *RepositoryError {
	dbTx := r.db.Begin()

	var item models.InventoryItem
	err := dbTx.Where("inventory_id = ?", inventoryID).First(&item).Error
	if err != nil {
		dbTx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("Inventory item does not exist", fmt.Sprintf("Inventory item with id %s does not exist", inventoryID))
		}
		return wrapDBError(err)
	}
	if item.FruitID != nil {
		dbTx.Rollback()
		if *item.FruitID == fruitID {
			// already linked to the same lot, tolerated as a no-op
			return nil
		}
		return &RepositoryError{
			Code:    ErrCodeInvalidState,
			Message: "Inventory item is already linked to a lot",
			Detail:  fmt.Sprintf("fruit id is %d, refusing to relink to %d", *item.FruitID, fruitID),
		}
	}

	item.FruitID = &fruitID
	if err := dbTx.Save(&item).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// AdjustInventoryQuantity applies a delta to a stock row, rejecting
// adjustments that would drive the quantity negative
func (r *Repository) AdjustInventoryQuantity(inventoryID string, delta int64) *RepositoryError {
	dbTx := r.db.Begin()

	var item models.InventoryItem
	err := dbTx.Where("inventory_id = ?", inventoryID).First(&item).Error
	if err != nil {
		dbTx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("Inventory item does not exist", fmt.Sprintf("Inventory item with id %s does not exist", inventoryID))
		}
		return wrapDBError(err)
	}

	if delta < 0 && item.Quantity < uint64(-delta) {
		dbTx.Rollback()
		return &RepositoryError{
			Code:    ErrCodeInvalidState,
			Message: "Insufficient inventory quantity",
			Detail:  fmt.Sprintf("quantity %d, requested adjustment %d", item.Quantity, delta),
		}
	}
	item.Quantity = uint64(int64(item.Quantity) + delta)

	if err := dbTx.Save(&item).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// Listing rows

// UpsertListing writes the mirror row for a ledger listing, keyed by
// the ledger-assigned listing id. The lot reference of an existing row
// is immutable, a conflicting lot id is rejected.
func (r *Repository) UpsertListing(listing *models.Listing) *RepositoryError {
	dbTx := r.db.Begin()

	var existing models.Listing
	err := dbTx.Where("listing_id = ?", listing.ListingID).First(&existing).Error
	switch {
	case err == nil:
		if existing.LotID != listing.LotID {
			dbTx.Rollback()
			return &RepositoryError{
				Code:    ErrCodeConflict,
				Message: "Listing id already mirrors a different lot",
				Detail:  fmt.Sprintf("listing %d refers to lot %d, refusing lot %d", listing.ListingID, existing.LotID, listing.LotID),
			}
		}
		existing.Price = listing.Price
		existing.Quantity = listing.Quantity
		existing.IsActive = listing.IsActive
		if listing.TxHash != "" {
			existing.TxHash = listing.TxHash
		}
		if listing.InventoryID != nil {
			existing.InventoryID = listing.InventoryID
		}
		if err := dbTx.Save(&existing).Error; err != nil {
			dbTx.Rollback()
			return wrapDBError(err)
		}
		*listing = existing
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := dbTx.Create(listing).Error; err != nil {
			dbTx.Rollback()
			return wrapDBError(err)
		}
	default:
		dbTx.Rollback()
		return wrapDBError(err)
	}

	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// GetListing returns a listing mirror row
func (r *Repository) GetListing(listingID uint64) (*models.Listing, *RepositoryError) {
	var listing models.Listing
	err := r.db.Where("listing_id = ?", listingID).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Listing does not exist", fmt.Sprintf("Listing with id %d does not exist", listingID))
		}
		return nil, wrapDBError(err)
	}
	return &listing, nil
}

// UpdateListingQuantity sets the mirrored quantity and active flag
// after a confirmed purchase
func (r *Repository) UpdateListingQuantity(listingID, quantity uint64, active bool) *RepositoryError {
	res := r.db.Model(&models.Listing{}).Where("listing_id = ?", listingID).
		Updates(map[string]any{"quantity": quantity, "is_active": active})
	if res.Error != nil {
		return wrapDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Listing does not exist", fmt.Sprintf("Listing with id %d does not exist", listingID))
	}
	return nil
}

// Order rows

// CreateOrder stores a purchase order mirror row
func (r *Repository) CreateOrder(order *models.PurchaseOrder) *RepositoryError {
	dbTx := r.db.Begin()
	if err := dbTx.Create(order).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// GetOrder returns a purchase order by id
func (r *Repository) GetOrder(orderID string) (*models.PurchaseOrder, *RepositoryError) {
	var order models.PurchaseOrder
	err := r.db.Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Order does not exist", fmt.Sprintf("Order with id %s does not exist", orderID))
		}
		return nil, wrapDBError(err)
	}
	return &order, nil
}

// UpdateOrderStatus advances the order lifecycle field
func (r *Repository) UpdateOrderStatus(orderID, status string) *RepositoryError {
	res := r.db.Model(&models.PurchaseOrder{}).Where("order_id = ?", orderID).Update("status", status)
	if res.Error != nil {
		return wrapDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Order does not exist", fmt.Sprintf("Order with id %s does not exist", orderID))
	}
	return nil
}

// Shipment rows

// CreateShipment stores a shipment mirror row
func (r *Repository) CreateShipment(shipment *models.Shipment) *RepositoryError {
	dbTx := r.db.Begin()
	if err := dbTx.Create(shipment).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError(err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// GetShipment returns a shipment by id
func (r *Repository) GetShipment(shipmentID string) (*models.Shipment, *RepositoryError) {
	var shipment models.Shipment
	err := r.db.Where("shipment_id = ?", shipmentID).First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Shipment does not exist", fmt.Sprintf("Shipment with id %s does not exist", shipmentID))
		}
		return nil, wrapDBError(err)
	}
	return &shipment, nil
}

// GetShipmentByInventoryID returns the newest shipment for a stock row
// at the given lifecycle stage
func (r *Repository) GetShipmentByInventoryID(inventoryID, status string) (*models.Shipment, *RepositoryError) {
	var shipment models.Shipment
	err := r.db.Where("inventory_id = ? AND status = ?", inventoryID, status).
		Order("created_at desc").First(&shipment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Shipment does not exist", fmt.Sprintf("No %s shipment for inventory item %s", status, inventoryID))
		}
		return nil, wrapDBError(err)
	}
	return &shipment, nil
}

// UpdateShipmentStatus advances the shipment lifecycle field
func (r *Repository) UpdateShipmentStatus(shipmentID, status string) *RepositoryError {
	res := r.db.Model(&models.Shipment{}).Where("shipment_id = ?", shipmentID).Update("status", status)
	if res.Error != nil {
		return wrapDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Shipment does not exist", fmt.Sprintf("Shipment with id %s does not exist", shipmentID))
	}
	return nil
}

// Sync tasks

// EnqueueSyncTask records a divergence for the reconciliation pass
func (r *Repository) EnqueueSyncTask(task *models.SyncTask) *RepositoryError {
	if err := r.db.Create(task).Error; err != nil {
		return wrapDBError(err)
	}
	return nil
}

// PendingSyncTasks returns unresolved reconciliation rows, oldest first
func (r *Repository) PendingSyncTasks(limit int) ([]models.SyncTask, *RepositoryError) {
	var tasks []models.SyncTask
	err := r.db.Where("resolved = ?", false).Order("created_at asc").Limit(limit).Find(&tasks).Error
	if err != nil {
		return nil, wrapDBError(err)
	}
	return tasks, nil
}

// ResolveSyncTask marks a reconciliation row as repaired
func (r *Repository) ResolveSyncTask(taskID uint) *RepositoryError {
	now := time.Now()
	res := r.db.Model(&models.SyncTask{}).Where("task_id = ?", taskID).
		Updates(map[string]any{"resolved": true, "resolved_at": &now})
	if res.Error != nil {
		return wrapDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("Sync task does not exist", fmt.Sprintf("Sync task with id %d does not exist", taskID))
	}
	return nil
}
