package engine

import (
	"context"

	"fruitchain/ledger"
	"fruitchain/repository"
	"fruitchain/repository/models"
)

// Chain is the contract surface the engine consumes. *ledger.Contract
// satisfies it, tests substitute a fake.
type Chain interface {
	IsFarmRegistered(ctx context.Context, farmID string) (bool, error)
	GetFarmData(ctx context.Context, farmID string) (*ledger.FarmData, error)
	RegisterFarm(ctx context.Context, opts ledger.ExecOpts, farmID, location, climate, soil, conditions string) (*ledger.Receipt, error)
	GetFruitCatalog(ctx context.Context, fruitType string) (*ledger.CatalogEntry, error)
	AddFruitCatalog(ctx context.Context, opts ledger.ExecOpts, entry ledger.CatalogEntry) (*ledger.Receipt, error)
	FruitCount(ctx context.Context) (uint64, error)
	GetFruit(ctx context.Context, lotID uint64) (*ledger.FruitLot, error)
	HarvestFruit(ctx context.Context, opts ledger.ExecOpts, fruitType, origin, farmID, quality string, quantity uint64) (*ledger.Receipt, uint64, error)
	GetListedProduct(ctx context.Context, listingID uint64) (*ledger.ListedProduct, error)
	ListProductForSale(ctx context.Context, opts ledger.ExecOpts, lotID, price, quantity uint64, active bool) (*ledger.Receipt, uint64, error)
	PurchaseProduct(ctx context.Context, opts ledger.ExecOpts, listingID uint64) (*ledger.Receipt, error)
	Owner(ctx context.Context) (string, error)
	AuthorizedManagers(ctx context.Context, address string) (bool, error)
	AddManager(ctx context.Context, opts ledger.ExecOpts, address string) (*ledger.Receipt, error)
}

// Guard validates the environment before mutating units of work
type Guard interface {
	VerifyEnvironment(ctx context.Context) error
}

// Store is the slice of the mirror repository the engine writes through
type Store interface {
	CreateFarm(farm *models.Farm) *repository.RepositoryError
	GetFarm(farmID string) (*models.Farm, *repository.RepositoryError)
	ListFarmsByOwner(ownerAddress string) ([]models.Farm, *repository.RepositoryError)
	MarkFarmOnLedger(farmID string) *repository.RepositoryError
	DeleteFarm(farmID, ownerAddress string) *repository.RepositoryError

	GetProduct(productID string) (*models.Product, *repository.RepositoryError)
	GetProductByFruitType(fruitType string) (*models.Product, *repository.RepositoryError)
	UpsertProduct(product *models.Product) *repository.RepositoryError

	CreateInventoryItem(item *models.InventoryItem) *repository.RepositoryError
	GetInventoryItem(inventoryID string) (*models.InventoryItem, *repository.RepositoryError)
	SetInventoryFruitID(inventoryID string, fruitID uint64) *repository.RepositoryError
	AdjustInventoryQuantity(inventoryID string, delta int64) *repository.RepositoryError

	UpsertListing(listing *models.Listing) *repository.RepositoryError
	GetListing(listingID uint64) (*models.Listing, *repository.RepositoryError)
	UpdateListingQuantity(listingID, quantity uint64, active bool) *repository.RepositoryError

	CreateOrder(order *models.PurchaseOrder) *repository.RepositoryError
	GetOrder(orderID string) (*models.PurchaseOrder, *repository.RepositoryError)
	UpdateOrderStatus(orderID, status string) *repository.RepositoryError

	CreateShipment(shipment *models.Shipment) *repository.RepositoryError
	GetShipment(shipmentID string) (*models.Shipment, *repository.RepositoryError)
	GetShipmentByInventoryID(inventoryID, status string) (*models.Shipment, *repository.RepositoryError)
	UpdateShipmentStatus(shipmentID, status string) *repository.RepositoryError

	EnqueueSyncTask(task *models.SyncTask) *repository.RepositoryError
	PendingSyncTasks(limit int) ([]models.SyncTask, *repository.RepositoryError)
	ResolveSyncTask(taskID uint) *repository.RepositoryError
}

var (
	_ Chain = (*ledger.Contract)(nil)
	_ Guard = (*ledger.Guard)(nil)
	_ Store = (*repository.Repository)(nil)
)
