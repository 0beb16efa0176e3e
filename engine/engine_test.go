package engine

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitchain/ledger"
	"fruitchain/repository"
	"fruitchain/repository/models"
)

func testSession() Session {
	return Session{Identity: "0xfarmer", RequestID: "11112222-3333-4444-5555-666677778888"}
}

func newTestEngine(chain *fakeChain, store *fakeStore, guard *fakeGuard) *Engine {
	return New(guard, chain, store, testLogger())
}

func seedInventory(store *fakeStore) {
	store.products["PRD-001"] = &models.Product{ID: "PRD-001", FruitType: "mango", Varieties: "Arumanis,Gedong"}
	store.farms["FARM-001"] = &models.Farm{ID: "FARM-001", OwnerAddress: "0xfarmer", Location: "Sleman"}
	store.inventory["INV-001"] = &models.InventoryItem{ID: "INV-001", ProductID: "PRD-001", OwnerAddress: "0xfarmer", Quantity: 100}
}

func TestListForSale_FullPipeline(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	guard := &fakeGuard{}
	seedInventory(store)
	eng := newTestEngine(chain, store, guard)

	result, err := eng.ListForSale(context.Background(), testSession(), ListForSaleRequest{
		InventoryID: "INV-001",
		FruitType:   "mango",
		Origin:      "Sleman",
		FarmID:      "FARM-001",
		Quality:     "A",
		Price:       15000,
		Quantity:    50,
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	// bootstrap created the catalog entry, farm and lot on the ledger
	assert.True(t, chain.catalog["mango"].Exists)
	_, farmOnChain := chain.farms["FARM-001"]
	assert.True(t, farmOnChain)
	assert.Equal(t, uint64(50), chain.lots[result.LotID].Quantity)

	// the mirror carries the listing and the lot link
	listing, repoErr := store.GetListing(result.ListingID)
	require.Nil(t, repoErr)
	assert.Equal(t, result.LotID, listing.LotID)
	require.NotNil(t, store.inventory["INV-001"].FruitID)
	assert.Equal(t, result.LotID, *store.inventory["INV-001"].FruitID)

	// the mirror farm is flagged as registered
	assert.True(t, store.farms["FARM-001"].OnLedger)
}

func TestListForSale_CountsCatalogBootstrapOutcome(t *testing.T) {
	before := testutil.ToFloat64(executesTotal.WithLabelValues("addFruitCatalog", "confirmed"))

	chain := newFakeChain()
	store := newFakeStore()
	seedInventory(store)
	eng := newTestEngine(chain, store, &fakeGuard{})

	_, err := eng.ListForSale(context.Background(), testSession(), ListForSaleRequest{
		InventoryID: "INV-001", FruitType: "mango", Origin: "Sleman", FarmID: "FARM-001", Quantity: 10,
	})
	require.NoError(t, err)

	after := testutil.ToFloat64(executesTotal.WithLabelValues("addFruitCatalog", "confirmed"))
	assert.Equal(t, before+1, after, "successful catalog bootstrap is counted")
}

func TestListForSale_GuardViolationBlocksEverything(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	guard := &fakeGuard{violation: &ledger.Error{
		Code: ledger.CodeEnvironmentViolation, Message: "expected network id 1337, observed 1",
	}}
	seedInventory(store)
	eng := newTestEngine(chain, store, guard)

	_, err := eng.ListForSale(context.Background(), testSession(), ListForSaleRequest{
		InventoryID: "INV-001", FruitType: "mango", FarmID: "FARM-001", Quantity: 10,
	})
	require.Error(t, err)
	assert.True(t, ledger.IsCode(err, ledger.CodeEnvironmentViolation))

	// nothing reached the ledger or the mirror
	assert.Zero(t, chain.harvestCalls)
	assert.Zero(t, chain.listCalls)
	assert.Empty(t, store.listings)
}

func TestListForSale_ShipmentLifecycleCheckedBeforeExecution(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	seedInventory(store)
	store.shipments["SHP-1"] = &models.Shipment{ID: "SHP-1", Status: models.ShipmentIncoming}
	eng := newTestEngine(chain, store, &fakeGuard{})

	_, err := eng.ListForSale(context.Background(), testSession(), ListForSaleRequest{
		InventoryID: "INV-001", ShipmentID: "SHP-1",
		FruitType: "mango", FarmID: "FARM-001", Quantity: 10,
	})

	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Zero(t, chain.listCalls, "no on-chain call for an unlistable shipment")
}

func TestListForSale_DivergenceAfterConfirm(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	seedInventory(store)
	store.failures["UpsertListing"] = &repository.RepositoryError{Code: repository.ErrCodeDatabase}
	eng := newTestEngine(chain, store, &fakeGuard{})

	_, err := eng.ListForSale(context.Background(), testSession(), ListForSaleRequest{
		InventoryID: "INV-001", FruitType: "mango", Origin: "Sleman", FarmID: "FARM-001", Quantity: 10,
	})

	var divergence *SyncDivergenceError
	require.ErrorAs(t, err, &divergence)
	assert.NotEmpty(t, divergence.ConfirmationRef)

	// the listing exists on the ledger even though the mirror failed
	assert.Equal(t, 1, chain.listCalls)
	assert.Len(t, chain.listings, 1)
}

func TestPurchase_AttachesExactPayment(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	chain.listings[7] = &ledger.ListedProduct{ListingID: 7, LotID: 3, Price: 15000, Quantity: 20, IsActive: true}
	store.listings[7] = &models.Listing{ListingID: 7, LotID: 3, Quantity: 20, IsActive: true}
	eng := newTestEngine(chain, store, &fakeGuard{})

	result, err := eng.Purchase(context.Background(), testSession(), PurchaseRequest{
		ListingID: 7, Quantity: 5, CustomerName: "Budi", ShippingAddress: "Jl. Kaliurang",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(75000), chain.purchaseValue)

	order, repoErr := store.GetOrder(result.OrderID)
	require.Nil(t, repoErr)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, uint64(15), store.listings[7].Quantity)
}

func TestPurchase_AdvancesListedShipmentToSold(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	inventoryID := "INV-001"
	chain.listings[7] = &ledger.ListedProduct{ListingID: 7, LotID: 3, Price: 1000, Quantity: 5, IsActive: true}
	store.listings[7] = &models.Listing{ListingID: 7, LotID: 3, InventoryID: &inventoryID, Quantity: 5, IsActive: true}
	store.shipments["SHP-1"] = &models.Shipment{ID: "SHP-1", InventoryID: &inventoryID, Status: models.ShipmentListed}
	eng := newTestEngine(chain, store, &fakeGuard{})

	_, err := eng.Purchase(context.Background(), testSession(), PurchaseRequest{ListingID: 7, Quantity: 5})
	require.NoError(t, err)

	assert.Equal(t, models.ShipmentSold, store.shipments["SHP-1"].Status)
}

func TestPurchase_RejectsOverflowingTotal(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	chain.listings[7] = &ledger.ListedProduct{ListingID: 7, LotID: 3, Price: math.MaxUint64 / 2, Quantity: 20, IsActive: true}
	eng := newTestEngine(chain, store, &fakeGuard{})

	_, err := eng.Purchase(context.Background(), testSession(), PurchaseRequest{ListingID: 7, Quantity: 3})
	require.Error(t, err)
	assert.True(t, ledger.IsCode(err, ledger.CodeInsufficientFunds))
	assert.Zero(t, chain.purchaseCalls, "no payable call for an overflowing total")
}

func TestPurchase_InactiveListingFailsBeforePayableCall(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	chain.listings[7] = &ledger.ListedProduct{ListingID: 7, Price: 15000, Quantity: 20, IsActive: false}
	eng := newTestEngine(chain, store, &fakeGuard{})

	_, err := eng.Purchase(context.Background(), testSession(), PurchaseRequest{ListingID: 7, Quantity: 5})

	var unavailable *ListingUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Zero(t, chain.purchaseCalls, "no payment-carrying call for an inactive listing")
	assert.Empty(t, store.orders)
}

func TestPurchase_InsufficientQuantityRejected(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	chain.listings[7] = &ledger.ListedProduct{ListingID: 7, Price: 15000, Quantity: 3, IsActive: true}
	eng := newTestEngine(chain, store, &fakeGuard{})

	_, err := eng.Purchase(context.Background(), testSession(), PurchaseRequest{ListingID: 7, Quantity: 5})

	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, uint64(3), stock.Available)
	assert.Equal(t, uint64(5), stock.Requested)
	assert.Zero(t, chain.purchaseCalls)
}

func TestReceiveShipment_RequiresCarrierInTransit(t *testing.T) {
	store := newFakeStore()
	store.shipments["SHP-1"] = &models.Shipment{
		ID: "SHP-1", Status: models.ShipmentIncoming, CarrierStatus: "label created",
	}
	eng := newTestEngine(newFakeChain(), store, &fakeGuard{})

	_, err := eng.ReceiveShipment(context.Background(), testSession(), "SHP-1")

	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.ShipmentIncoming, store.shipments["SHP-1"].Status, "state untouched")
}

func TestReceiveShipment_AdvancesToReceived(t *testing.T) {
	store := newFakeStore()
	store.shipments["SHP-1"] = &models.Shipment{
		ID: "SHP-1", Status: models.ShipmentIncoming, CarrierStatus: models.CarrierInTransit,
	}
	eng := newTestEngine(newFakeChain(), store, &fakeGuard{})

	shipment, err := eng.ReceiveShipment(context.Background(), testSession(), "SHP-1")
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentReceived, shipment.Status)
	assert.Equal(t, models.ShipmentReceived, store.shipments["SHP-1"].Status)
}

func TestAddToInventory_AdvancesShipment(t *testing.T) {
	store := newFakeStore()
	store.products["PRD-001"] = &models.Product{ID: "PRD-001", FruitType: "mango"}
	store.shipments["SHP-1"] = &models.Shipment{ID: "SHP-1", Status: models.ShipmentReceived}
	eng := newTestEngine(newFakeChain(), store, &fakeGuard{})

	item, err := eng.AddToInventory(context.Background(), testSession(), AddToInventoryRequest{
		ProductID: "PRD-001", ShipmentID: "SHP-1", Quantity: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(40), item.Quantity)
	assert.Equal(t, "0xfarmer", item.OwnerAddress)
	assert.Equal(t, models.ShipmentInventoried, store.shipments["SHP-1"].Status)
}

func TestAddToInventory_ShortRequestID(t *testing.T) {
	store := newFakeStore()
	store.products["PRD-001"] = &models.Product{ID: "PRD-001", FruitType: "mango"}
	eng := newTestEngine(newFakeChain(), store, &fakeGuard{})

	item, err := eng.AddToInventory(context.Background(), Session{Identity: "0xfarmer", RequestID: "ab"}, AddToInventoryRequest{
		ProductID: "PRD-001", Quantity: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-AB000000", item.ID, "short request ids are padded")
}

func TestShipToCustomer_DecrementsStockAndAdvancesOrder(t *testing.T) {
	store := newFakeStore()
	inventoryID := "INV-001"
	store.inventory[inventoryID] = &models.InventoryItem{ID: inventoryID, Quantity: 10}
	store.listings[7] = &models.Listing{ListingID: 7, LotID: 3, InventoryID: &inventoryID, Quantity: 10, IsActive: true}
	store.orders["ORD-1"] = &models.PurchaseOrder{ID: "ORD-1", ListingID: 7, Quantity: 4, Status: models.OrderPending}
	eng := newTestEngine(newFakeChain(), store, &fakeGuard{})

	shipment, err := eng.ShipToCustomer(context.Background(), testSession(), ShipToCustomerRequest{
		OrderID: "ORD-1", Carrier: "JNE",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentOutgoing, shipment.Status)
	assert.Equal(t, models.CarrierInTransit, shipment.CarrierStatus)
	assert.Equal(t, uint64(6), store.inventory[inventoryID].Quantity)
	assert.Equal(t, models.OrderShipped, store.orders["ORD-1"].Status)
}

func TestShipToCustomer_InsufficientStockLeavesStateUntouched(t *testing.T) {
	store := newFakeStore()
	inventoryID := "INV-001"
	store.inventory[inventoryID] = &models.InventoryItem{ID: inventoryID, Quantity: 2}
	store.listings[7] = &models.Listing{ListingID: 7, InventoryID: &inventoryID}
	store.orders["ORD-1"] = &models.PurchaseOrder{ID: "ORD-1", ListingID: 7, Quantity: 4, Status: models.OrderPending}
	eng := newTestEngine(newFakeChain(), store, &fakeGuard{})

	_, err := eng.ShipToCustomer(context.Background(), testSession(), ShipToCustomerRequest{OrderID: "ORD-1"})

	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, uint64(2), store.inventory[inventoryID].Quantity)
	assert.Equal(t, models.OrderPending, store.orders["ORD-1"].Status)
	assert.Empty(t, store.shipments)
}

func TestCancelOrder_OnlyBeforeShipping(t *testing.T) {
	store := newFakeStore()
	store.orders["ORD-1"] = &models.PurchaseOrder{ID: "ORD-1", Status: models.OrderPending}
	store.orders["ORD-2"] = &models.PurchaseOrder{ID: "ORD-2", Status: models.OrderShipped}
	eng := newTestEngine(newFakeChain(), store, &fakeGuard{})

	require.NoError(t, eng.CancelOrder(context.Background(), testSession(), "ORD-1"))
	assert.Equal(t, models.OrderCancelled, store.orders["ORD-1"].Status)

	err := eng.CancelOrder(context.Background(), testSession(), "ORD-2")
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.OrderShipped, store.orders["ORD-2"].Status)
}

func TestSyncProduct_RepairsMirrorFromLedger(t *testing.T) {
	chain := newFakeChain()
	store := newFakeStore()
	chain.listings[7] = &ledger.ListedProduct{ListingID: 7, LotID: 3, Price: 9000, Quantity: 12, IsActive: true}
	store.listings[7] = &models.Listing{ListingID: 7, LotID: 3, Price: 15000, Quantity: 99, IsActive: false}
	eng := newTestEngine(chain, store, &fakeGuard{})

	listing, err := eng.SyncProduct(context.Background(), testSession(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), listing.Price)
	assert.Equal(t, uint64(12), store.listings[7].Quantity)
	assert.True(t, store.listings[7].IsActive)
}

func TestAddManager_ContractEnforcesOwnership(t *testing.T) {
	chain := newFakeChain()
	chain.owner = "0xfarmer"
	eng := newTestEngine(chain, newFakeStore(), &fakeGuard{})

	ref, err := eng.AddManager(context.Background(), testSession(), "0xmanager")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.True(t, chain.managers["0xmanager"])

	_, err = eng.AddManager(context.Background(), Session{Identity: "0xintruder", RequestID: "deadbeef"}, "0xother")
	require.Error(t, err)
	assert.True(t, ledger.IsCode(err, ledger.CodeReverted))
	assert.False(t, chain.managers["0xother"])
}

func TestCheckRole(t *testing.T) {
	chain := newFakeChain()
	chain.owner = "0xOWNER"
	chain.managers["0xmanager"] = true
	eng := newTestEngine(chain, newFakeStore(), &fakeGuard{})

	role, err := eng.CheckRole(context.Background(), "0xowner")
	require.NoError(t, err)
	assert.Equal(t, "owner", role, "owner comparison is case insensitive")

	role, err = eng.CheckRole(context.Background(), "0xmanager")
	require.NoError(t, err)
	assert.Equal(t, "manager", role)

	role, err = eng.CheckRole(context.Background(), "0xsomeone")
	require.NoError(t, err)
	assert.Equal(t, "customer", role)
}
