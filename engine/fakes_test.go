package engine

import (
	"context"
	"fmt"

	"fruitchain/ledger"
	"fruitchain/repository"
	"fruitchain/repository/models"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

func testLogger() cmtlog.Logger {
	return cmtlog.NewNopLogger()
}

// fakeGuard rejects when violation is set
type fakeGuard struct {
	violation error
	calls     int
}

func (g *fakeGuard) VerifyEnvironment(ctx context.Context) error {
	g.calls++
	return g.violation
}

// fakeChain is an in-memory stand-in for the deployed contract
type fakeChain struct {
	owner    string
	managers map[string]bool
	farms    map[string]*ledger.FarmData
	catalog  map[string]*ledger.CatalogEntry
	lots     map[uint64]*ledger.FruitLot
	listings map[uint64]*ledger.ListedProduct

	nextLotID     uint64
	nextListingID uint64

	harvestCalls  int
	listCalls     int
	purchaseCalls int
	purchaseValue uint64

	failExecute error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		managers: make(map[string]bool),
		farms:    make(map[string]*ledger.FarmData),
		catalog:  make(map[string]*ledger.CatalogEntry),
		lots:     make(map[uint64]*ledger.FruitLot),
		listings: make(map[uint64]*ledger.ListedProduct),
	}
}

func receiptFor(method string) *ledger.Receipt {
	return &ledger.Receipt{ConfirmationRef: "0xhash-" + method, BlockHeight: 10}
}

func (c *fakeChain) IsFarmRegistered(ctx context.Context, farmID string) (bool, error) {
	_, ok := c.farms[farmID]
	return ok, nil
}

func (c *fakeChain) GetFarmData(ctx context.Context, farmID string) (*ledger.FarmData, error) {
	farm, ok := c.farms[farmID]
	if !ok {
		return nil, &ledger.Error{Code: ledger.CodeReverted, Message: "farm not found"}
	}
	return farm, nil
}

func (c *fakeChain) RegisterFarm(ctx context.Context, opts ledger.ExecOpts, farmID, location, climate, soil, conditions string) (*ledger.Receipt, error) {
	if c.failExecute != nil {
		return nil, c.failExecute
	}
	if _, ok := c.farms[farmID]; ok {
		return nil, &ledger.Error{Code: ledger.CodeReverted, Message: "farm already exists"}
	}
	c.farms[farmID] = &ledger.FarmData{Location: location, Climate: climate, Soil: soil, Conditions: conditions, Owner: opts.Identity}
	return receiptFor("registerFarm"), nil
}

func (c *fakeChain) GetFruitCatalog(ctx context.Context, fruitType string) (*ledger.CatalogEntry, error) {
	entry, ok := c.catalog[fruitType]
	if !ok {
		return &ledger.CatalogEntry{FruitType: fruitType, Exists: false}, nil
	}
	return entry, nil
}

func (c *fakeChain) AddFruitCatalog(ctx context.Context, opts ledger.ExecOpts, entry ledger.CatalogEntry) (*ledger.Receipt, error) {
	if c.failExecute != nil {
		return nil, c.failExecute
	}
	if existing, ok := c.catalog[entry.FruitType]; ok && existing.Exists {
		return nil, &ledger.Error{Code: ledger.CodeReverted, Message: "catalog entry already exists"}
	}
	entry.Exists = true
	c.catalog[entry.FruitType] = &entry
	return receiptFor("addFruitCatalog"), nil
}

func (c *fakeChain) FruitCount(ctx context.Context) (uint64, error) {
	return c.nextLotID, nil
}

func (c *fakeChain) GetFruit(ctx context.Context, lotID uint64) (*ledger.FruitLot, error) {
	lot, ok := c.lots[lotID]
	if !ok {
		return nil, &ledger.Error{Code: ledger.CodeReverted, Message: "lot not found"}
	}
	return lot, nil
}

func (c *fakeChain) HarvestFruit(ctx context.Context, opts ledger.ExecOpts, fruitType, origin, farmID, quality string, quantity uint64) (*ledger.Receipt, uint64, error) {
	if c.failExecute != nil {
		return nil, 0, c.failExecute
	}
	c.harvestCalls++

	// an open lot for the same type, farm and origin is credited
	for id := c.nextLotID; id >= 1; id-- {
		lot := c.lots[id]
		if lot != nil && lot.FruitType == fruitType && lot.FarmID == farmID && lot.Origin == origin {
			lot.Quantity += quantity
			return receiptFor("harvestFruit"), id, nil
		}
	}

	c.nextLotID++
	c.lots[c.nextLotID] = &ledger.FruitLot{
		ID: c.nextLotID, FruitType: fruitType, Origin: origin, FarmID: farmID, Quality: quality, Quantity: quantity,
	}
	return receiptFor("harvestFruit"), c.nextLotID, nil
}

func (c *fakeChain) GetListedProduct(ctx context.Context, listingID uint64) (*ledger.ListedProduct, error) {
	listing, ok := c.listings[listingID]
	if !ok {
		return nil, &ledger.Error{Code: ledger.CodeReverted, Message: "listing not found"}
	}
	return listing, nil
}

func (c *fakeChain) ListProductForSale(ctx context.Context, opts ledger.ExecOpts, lotID, price, quantity uint64, active bool) (*ledger.Receipt, uint64, error) {
	if c.failExecute != nil {
		return nil, 0, c.failExecute
	}
	c.listCalls++
	lot, ok := c.lots[lotID]
	if !ok {
		return nil, 0, &ledger.Error{Code: ledger.CodeReverted, Message: "lot not found"}
	}
	if lot.Quantity < quantity {
		return nil, 0, &ledger.Error{Code: ledger.CodeReverted, Message: "insufficient lot quantity"}
	}
	c.nextListingID++
	c.listings[c.nextListingID] = &ledger.ListedProduct{
		ListingID: c.nextListingID, LotID: lotID, Price: price, Quantity: quantity, IsActive: active,
	}
	return receiptFor("listProductForSale"), c.nextListingID, nil
}

func (c *fakeChain) PurchaseProduct(ctx context.Context, opts ledger.ExecOpts, listingID uint64) (*ledger.Receipt, error) {
	if c.failExecute != nil {
		return nil, c.failExecute
	}
	c.purchaseCalls++
	c.purchaseValue = opts.Value
	listing, ok := c.listings[listingID]
	if !ok || !listing.IsActive {
		return nil, &ledger.Error{Code: ledger.CodeReverted, Message: "listing unavailable"}
	}
	return receiptFor("purchaseProduct"), nil
}

func (c *fakeChain) Owner(ctx context.Context) (string, error) {
	return c.owner, nil
}

func (c *fakeChain) AuthorizedManagers(ctx context.Context, address string) (bool, error) {
	return c.managers[address], nil
}

func (c *fakeChain) AddManager(ctx context.Context, opts ledger.ExecOpts, address string) (*ledger.Receipt, error) {
	if c.failExecute != nil {
		return nil, c.failExecute
	}
	if opts.Identity != c.owner {
		return nil, &ledger.Error{Code: ledger.CodeReverted, Message: "caller is not the owner"}
	}
	c.managers[address] = true
	return receiptFor("addManager"), nil
}

// fakeStore is an in-memory mirror. failures maps a method name to the
// error it should return, simulating a mirror outage mid-pipeline.
type fakeStore struct {
	farms     map[string]*models.Farm
	products  map[string]*models.Product
	inventory map[string]*models.InventoryItem
	listings  map[uint64]*models.Listing
	orders    map[string]*models.PurchaseOrder
	shipments map[string]*models.Shipment
	tasks     []models.SyncTask
	nextTask  uint

	failures map[string]*repository.RepositoryError
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		farms:     make(map[string]*models.Farm),
		products:  make(map[string]*models.Product),
		inventory: make(map[string]*models.InventoryItem),
		listings:  make(map[uint64]*models.Listing),
		orders:    make(map[string]*models.PurchaseOrder),
		shipments: make(map[string]*models.Shipment),
		failures:  make(map[string]*repository.RepositoryError),
	}
}

func (s *fakeStore) failWith(method string) *repository.RepositoryError {
	return s.failures[method]
}

func storeNotFound(entity string) *repository.RepositoryError {
	return &repository.RepositoryError{Code: repository.ErrCodeEntityNotFound, Message: entity + " not found"}
}

func (s *fakeStore) CreateFarm(farm *models.Farm) *repository.RepositoryError {
	if err := s.failWith("CreateFarm"); err != nil {
		return err
	}
	if _, ok := s.farms[farm.ID]; ok {
		return &repository.RepositoryError{Code: repository.PgErrUniqueViolation, Message: "duplicate farm"}
	}
	cp := *farm
	s.farms[farm.ID] = &cp
	return nil
}

func (s *fakeStore) GetFarm(farmID string) (*models.Farm, *repository.RepositoryError) {
	farm, ok := s.farms[farmID]
	if !ok {
		return nil, storeNotFound("farm")
	}
	cp := *farm
	return &cp, nil
}

func (s *fakeStore) ListFarmsByOwner(ownerAddress string) ([]models.Farm, *repository.RepositoryError) {
	var out []models.Farm
	for _, farm := range s.farms {
		if farm.OwnerAddress == ownerAddress {
			out = append(out, *farm)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkFarmOnLedger(farmID string) *repository.RepositoryError {
	farm, ok := s.farms[farmID]
	if !ok {
		return storeNotFound("farm")
	}
	farm.OnLedger = true
	return nil
}

func (s *fakeStore) DeleteFarm(farmID, ownerAddress string) *repository.RepositoryError {
	farm, ok := s.farms[farmID]
	if !ok {
		return storeNotFound("farm")
	}
	if farm.OwnerAddress != ownerAddress {
		return &repository.RepositoryError{Code: repository.ErrCodeConflict, Message: "not the farm owner"}
	}
	delete(s.farms, farmID)
	return nil
}

func (s *fakeStore) GetProduct(productID string) (*models.Product, *repository.RepositoryError) {
	product, ok := s.products[productID]
	if !ok {
		return nil, storeNotFound("product")
	}
	return product, nil
}

func (s *fakeStore) GetProductByFruitType(fruitType string) (*models.Product, *repository.RepositoryError) {
	for _, product := range s.products {
		if product.FruitType == fruitType {
			return product, nil
		}
	}
	return nil, storeNotFound("product")
}

func (s *fakeStore) UpsertProduct(product *models.Product) *repository.RepositoryError {
	if _, ok := s.products[product.ID]; !ok {
		s.products[product.ID] = product
	}
	return nil
}

func (s *fakeStore) CreateInventoryItem(item *models.InventoryItem) *repository.RepositoryError {
	if err := s.failWith("CreateInventoryItem"); err != nil {
		return err
	}
	if _, ok := s.inventory[item.ID]; ok {
		return &repository.RepositoryError{Code: repository.PgErrUniqueViolation, Message: "duplicate inventory id"}
	}
	cp := *item
	s.inventory[item.ID] = &cp
	return nil
}

func (s *fakeStore) GetInventoryItem(inventoryID string) (*models.InventoryItem, *repository.RepositoryError) {
	item, ok := s.inventory[inventoryID]
	if !ok {
		return nil, storeNotFound("inventory item")
	}
	cp := *item
	if product, ok := s.products[item.ProductID]; ok {
		cp.Product = product
	}
	return &cp, nil
}

func (s *fakeStore) SetInventoryFruitID(inventoryID string, fruitID uint64) *repository.RepositoryError {
	if err := s.failWith("SetInventoryFruitID"); err != nil {
		return err
	}
	item, ok := s.inventory[inventoryID]
	if !ok {
		return storeNotFound("inventory item")
	}
	if item.FruitID != nil {
		if *item.FruitID == fruitID {
			return nil
		}
		return &repository.RepositoryError{Code: repository.ErrCodeInvalidState, Message: "fruit id already set"}
	}
	item.FruitID = &fruitID
	return nil
}

func (s *fakeStore) AdjustInventoryQuantity(inventoryID string, delta int64) *repository.RepositoryError {
	item, ok := s.inventory[inventoryID]
	if !ok {
		return storeNotFound("inventory item")
	}
	next := int64(item.Quantity) + delta
	if next < 0 {
		return &repository.RepositoryError{Code: repository.ErrCodeInvalidState, Message: "quantity would go negative"}
	}
	item.Quantity = uint64(next)
	return nil
}

func (s *fakeStore) UpsertListing(listing *models.Listing) *repository.RepositoryError {
	if err := s.failWith("UpsertListing"); err != nil {
		return err
	}
	if existing, ok := s.listings[listing.ListingID]; ok && existing.LotID != listing.LotID {
		return &repository.RepositoryError{Code: repository.ErrCodeConflict, Message: "lot reference is immutable"}
	}
	cp := *listing
	s.listings[listing.ListingID] = &cp
	return nil
}

func (s *fakeStore) GetListing(listingID uint64) (*models.Listing, *repository.RepositoryError) {
	listing, ok := s.listings[listingID]
	if !ok {
		return nil, storeNotFound("listing")
	}
	cp := *listing
	return &cp, nil
}

func (s *fakeStore) UpdateListingQuantity(listingID, quantity uint64, active bool) *repository.RepositoryError {
	if err := s.failWith("UpdateListingQuantity"); err != nil {
		return err
	}
	listing, ok := s.listings[listingID]
	if !ok {
		return storeNotFound("listing")
	}
	listing.Quantity = quantity
	listing.IsActive = active
	return nil
}

func (s *fakeStore) CreateOrder(order *models.PurchaseOrder) *repository.RepositoryError {
	if err := s.failWith("CreateOrder"); err != nil {
		return err
	}
	if _, ok := s.orders[order.ID]; ok {
		return &repository.RepositoryError{Code: repository.PgErrUniqueViolation, Message: "duplicate order"}
	}
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *fakeStore) GetOrder(orderID string) (*models.PurchaseOrder, *repository.RepositoryError) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, storeNotFound("order")
	}
	cp := *order
	return &cp, nil
}

func (s *fakeStore) UpdateOrderStatus(orderID, status string) *repository.RepositoryError {
	order, ok := s.orders[orderID]
	if !ok {
		return storeNotFound("order")
	}
	order.Status = status
	return nil
}

func (s *fakeStore) CreateShipment(shipment *models.Shipment) *repository.RepositoryError {
	if err := s.failWith("CreateShipment"); err != nil {
		return err
	}
	cp := *shipment
	s.shipments[shipment.ID] = &cp
	return nil
}

func (s *fakeStore) GetShipment(shipmentID string) (*models.Shipment, *repository.RepositoryError) {
	shipment, ok := s.shipments[shipmentID]
	if !ok {
		return nil, storeNotFound("shipment")
	}
	cp := *shipment
	return &cp, nil
}

func (s *fakeStore) GetShipmentByInventoryID(inventoryID, status string) (*models.Shipment, *repository.RepositoryError) {
	for _, shipment := range s.shipments {
		if shipment.InventoryID != nil && *shipment.InventoryID == inventoryID && shipment.Status == status {
			cp := *shipment
			return &cp, nil
		}
	}
	return nil, storeNotFound("shipment")
}

func (s *fakeStore) UpdateShipmentStatus(shipmentID, status string) *repository.RepositoryError {
	if err := s.failWith("UpdateShipmentStatus"); err != nil {
		return err
	}
	shipment, ok := s.shipments[shipmentID]
	if !ok {
		return storeNotFound("shipment")
	}
	shipment.Status = status
	return nil
}

func (s *fakeStore) EnqueueSyncTask(task *models.SyncTask) *repository.RepositoryError {
	if err := s.failWith("EnqueueSyncTask"); err != nil {
		return err
	}
	s.nextTask++
	task.ID = s.nextTask
	s.tasks = append(s.tasks, *task)
	return nil
}

func (s *fakeStore) PendingSyncTasks(limit int) ([]models.SyncTask, *repository.RepositoryError) {
	var out []models.SyncTask
	for _, task := range s.tasks {
		if task.Resolved {
			continue
		}
		out = append(out, task)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) ResolveSyncTask(taskID uint) *repository.RepositoryError {
	for i := range s.tasks {
		if s.tasks[i].ID == taskID {
			s.tasks[i].Resolved = true
			return nil
		}
	}
	return storeNotFound(fmt.Sprintf("task %d", taskID))
}

var (
	_ Chain = (*fakeChain)(nil)
	_ Guard = (*fakeGuard)(nil)
	_ Store = (*fakeStore)(nil)
)
