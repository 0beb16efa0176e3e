package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"fruitchain/ledger"
	"fruitchain/repository/models"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
)

// Session identifies one logical, cancellable unit of work. It replaces
// ambient wallet state: the signing identity and the request id travel
// with every engine call.
type Session struct {
	Identity  string
	RequestID string
}

// NewSession creates a session for the given signing address
func NewSession(identity string) Session {
	return Session{Identity: identity, RequestID: uuid.NewString()}
}

// execOpts derives the execution options for one step of the unit of
// work. The idempotency key is stable per (request, step) so a retried
// unit resumes a recorded submission instead of duplicating it.
func (s Session) execOpts(step string) ledger.ExecOpts {
	return ledger.ExecOpts{
		Identity:       s.Identity,
		IdempotencyKey: s.RequestID + ":" + step,
	}
}

// shortRef returns the first eight characters of the request id,
// uppercased, as the suffix for derived entity ids. Shorter request
// ids are right padded.
func (s Session) shortRef() string {
	id := strings.ToUpper(s.RequestID)
	for len(id) < 8 {
		id += "0"
	}
	return id[:8]
}

// Engine orchestrates each external action as a strict sequence:
// guard -> bootstrap -> execute -> synchronize. Independent units of
// work run concurrently; conflicting mutations per signing identity are
// serialized by the gateway's per-identity ordering.
type Engine struct {
	guard  Guard
	chain  Chain
	store  Store
	boot   *Bootstrapper
	sync   *Synchronizer
	logger cmtlog.Logger
}

// New wires an engine from its collaborators
func New(guard Guard, chain Chain, store Store, logger cmtlog.Logger) *Engine {
	return &Engine{
		guard:  guard,
		chain:  chain,
		store:  store,
		boot:   NewBootstrapper(chain, logger),
		sync:   NewSynchronizer(store, logger),
		logger: logger,
	}
}

// Synchronizer exposes the sync component, the reconciler shares it
func (e *Engine) Synchronizer() *Synchronizer { return e.sync }

func (e *Engine) verifyEnvironment(ctx context.Context) error {
	if err := e.guard.VerifyEnvironment(ctx); err != nil {
		guardViolationsTotal.Inc()
		return err
	}
	return nil
}

func recordExecOutcome(method string, err error) {
	outcome := "confirmed"
	if err != nil {
		outcome = "failed"
		if le, ok := err.(*ledger.Error); ok {
			outcome = strings.ToLower(le.Code)
		}
	}
	executesTotal.WithLabelValues(method, outcome).Inc()
}

// ListForSaleRequest asks for an inventory item to be listed on the
// ledger. FruitType, Origin, FarmID and Quality describe the lot the
// listing must draw from.
type ListForSaleRequest struct {
	InventoryID string
	ShipmentID  string
	FruitType   string
	Origin      string
	FarmID      string
	Quality     string
	Price       uint64
	Quantity    uint64
}

// ListForSaleResult carries the ledger-assigned identifiers back
type ListForSaleResult struct {
	ListingID       uint64 `json:"listing_id"`
	LotID           uint64 `json:"lot_id"`
	Quantity        uint64 `json:"quantity"`
	ConfirmationRef string `json:"confirmation_ref"`
}

// ListForSale bootstraps the catalog entry, farm and harvest lot the
// listing depends on, executes listProductForSale and mirrors the
// result
func (e *Engine) ListForSale(ctx context.Context, sess Session, req ListForSaleRequest) (*ListForSaleResult, error) {
	if err := e.verifyEnvironment(ctx); err != nil {
		return nil, err
	}

	item, repoErr := e.store.GetInventoryItem(req.InventoryID)
	if repoErr != nil {
		return nil, repoErr
	}

	// lifecycle is checked before anything irreversible happens
	var shipment *models.Shipment
	if req.ShipmentID != "" {
		shipment, repoErr = e.store.GetShipment(req.ShipmentID)
		if repoErr != nil {
			return nil, repoErr
		}
		if err := ShipmentTransition(shipment.Status, models.ShipmentListed); err != nil {
			return nil, err
		}
	}

	entry := e.catalogEntryFor(item, req.FruitType)
	err := e.boot.EnsureCatalogEntry(ctx, sess.execOpts("catalog"), entry)
	recordExecOutcome("addFruitCatalog", err)
	if err != nil {
		return nil, err
	}

	if err := e.ensureFarmFromMirror(ctx, sess, req.FarmID); err != nil {
		return nil, err
	}

	lotID, err := e.boot.EnsureHarvestLot(ctx, sess.execOpts("lot"), req.FruitType, req.Origin, req.FarmID, req.Quality, req.Quantity)
	recordExecOutcome("harvestFruit", err)
	if err != nil {
		return nil, err
	}

	receipt, listingID, err := e.chain.ListProductForSale(ctx, sess.execOpts("list"), lotID, req.Price, req.Quantity, true)
	recordExecOutcome("listProductForSale", err)
	if err != nil {
		return nil, err
	}

	listing := &models.Listing{
		ListingID:   listingID,
		LotID:       lotID,
		InventoryID: &req.InventoryID,
		Price:       req.Price,
		Quantity:    req.Quantity,
		IsActive:    true,
		TxHash:      receipt.ConfirmationRef,
	}
	if err := e.sync.RecordListing(listing); err != nil {
		return nil, err
	}
	if item.FruitID == nil {
		if err := e.sync.LinkInventoryLot(item.ID, lotID, receipt.ConfirmationRef); err != nil {
			return nil, err
		}
	}
	if shipment != nil {
		if repoErr := e.store.UpdateShipmentStatus(shipment.ID, models.ShipmentListed); repoErr != nil {
			e.logger.Error("Failed to advance shipment after listing", "shipment_id", shipment.ID, "err", repoErr)
		}
	}

	e.logger.Info("Listing confirmed and mirrored",
		"listing_id", listingID, "lot_id", lotID, "quantity", req.Quantity, "tx_hash", receipt.ConfirmationRef)
	return &ListForSaleResult{
		ListingID:       listingID,
		LotID:           lotID,
		Quantity:        req.Quantity,
		ConfirmationRef: receipt.ConfirmationRef,
	}, nil
}

func (e *Engine) catalogEntryFor(item *models.InventoryItem, fruitType string) ledger.CatalogEntry {
	entry := ledger.CatalogEntry{FruitType: fruitType}
	product := item.Product
	if product == nil {
		if p, repoErr := e.store.GetProductByFruitType(fruitType); repoErr == nil {
			product = p
		}
	}
	if product != nil {
		entry.Description = product.Description
		entry.Season = product.Season
		entry.Nutrition = product.Nutrition
		entry.Storage = product.Storage
		if product.Varieties != "" {
			entry.Varieties = strings.Split(product.Varieties, ",")
		}
	}
	return entry
}

func (e *Engine) ensureFarmFromMirror(ctx context.Context, sess Session, farmID string) error {
	farm, repoErr := e.store.GetFarm(farmID)
	if repoErr != nil {
		return repoErr
	}
	err := e.boot.EnsureFarm(ctx, sess.execOpts("farm"), farm.ID, farm.Location, farm.Climate, farm.Soil, farm.Conditions)
	recordExecOutcome("registerFarm", err)
	if err != nil {
		return err
	}
	if !farm.OnLedger {
		if repoErr := e.store.MarkFarmOnLedger(farm.ID); repoErr != nil {
			e.logger.Error("Failed to flag farm as registered", "farm_id", farm.ID, "err", repoErr)
		}
	}
	return nil
}

// PurchaseRequest asks for quantity units of a listing, with the
// customer data the ledger does not model
type PurchaseRequest struct {
	ListingID       uint64
	Quantity        uint64
	CustomerName    string
	ShippingAddress string
}

// PurchaseResult carries the order id and confirmation back
type PurchaseResult struct {
	OrderID         string `json:"order_id"`
	ListingID       uint64 `json:"listing_id"`
	Quantity        uint64 `json:"quantity"`
	ConfirmationRef string `json:"confirmation_ref"`
}

// Purchase validates the listing against a fresh on-chain read, then
// executes the payable purchase call and mirrors the order. An inactive
// listing or insufficient quantity is rejected before any
// payment-carrying call is issued.
func (e *Engine) Purchase(ctx context.Context, sess Session, req PurchaseRequest) (*PurchaseResult, error) {
	if err := e.verifyEnvironment(ctx); err != nil {
		return nil, err
	}

	listed, err := e.chain.GetListedProduct(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if !listed.IsActive {
		return nil, &ListingUnavailableError{ListingID: req.ListingID}
	}
	if req.Quantity > listed.Quantity {
		return nil, &InsufficientStockError{Available: listed.Quantity, Requested: req.Quantity}
	}
	if listed.Price > 0 && req.Quantity > math.MaxUint64/listed.Price {
		return nil, &ledger.Error{
			Code:    ledger.CodeInsufficientFunds,
			Message: "purchase total is not representable",
			Detail:  fmt.Sprintf("price %d with quantity %d overflows the payment value", listed.Price, req.Quantity),
		}
	}

	opts := sess.execOpts("purchase")
	opts.Value = listed.Price * req.Quantity
	receipt, err := e.chain.PurchaseProduct(ctx, opts, req.ListingID)
	recordExecOutcome("purchaseProduct", err)
	if err != nil {
		return nil, err
	}

	txHash := receipt.ConfirmationRef
	order := &models.PurchaseOrder{
		ID:              "ORD-" + sess.shortRef(),
		ListingID:       req.ListingID,
		BuyerAddress:    sess.Identity,
		CustomerName:    req.CustomerName,
		ShippingAddress: req.ShippingAddress,
		Quantity:        req.Quantity,
		Status:          models.OrderPending,
		TxHash:          &txHash,
	}
	remaining := listed.Quantity - req.Quantity
	if err := e.sync.RecordPurchase(order, remaining, receipt.ConfirmationRef); err != nil {
		return nil, err
	}

	e.logger.Info("Purchase confirmed and mirrored",
		"order_id", order.ID, "listing_id", req.ListingID, "quantity", req.Quantity, "tx_hash", txHash)
	return &PurchaseResult{
		OrderID:         order.ID,
		ListingID:       req.ListingID,
		Quantity:        req.Quantity,
		ConfirmationRef: txHash,
	}, nil
}

// HarvestRequest records a new harvest on the ledger
type HarvestRequest struct {
	FruitType string
	Origin    string
	FarmID    string
	Quality   string
	Quantity  uint64
}

// HarvestResult carries the ledger-assigned lot id back
type HarvestResult struct {
	LotID           uint64 `json:"lot_id"`
	ConfirmationRef string `json:"confirmation_ref"`
}

// Harvest bootstraps the catalog entry and farm, then records the
// harvest. Unlike EnsureHarvestLot this always adds quantity.
func (e *Engine) Harvest(ctx context.Context, sess Session, req HarvestRequest) (*HarvestResult, error) {
	if err := e.verifyEnvironment(ctx); err != nil {
		return nil, err
	}

	entry := ledger.CatalogEntry{FruitType: req.FruitType}
	if product, repoErr := e.store.GetProductByFruitType(req.FruitType); repoErr == nil {
		entry.Description = product.Description
		entry.Season = product.Season
		entry.Nutrition = product.Nutrition
		entry.Storage = product.Storage
		if product.Varieties != "" {
			entry.Varieties = strings.Split(product.Varieties, ",")
		}
	}
	err := e.boot.EnsureCatalogEntry(ctx, sess.execOpts("catalog"), entry)
	recordExecOutcome("addFruitCatalog", err)
	if err != nil {
		return nil, err
	}
	if err := e.ensureFarmFromMirror(ctx, sess, req.FarmID); err != nil {
		return nil, err
	}

	receipt, lotID, err := e.chain.HarvestFruit(ctx, sess.execOpts("harvest"), req.FruitType, req.Origin, req.FarmID, req.Quality, req.Quantity)
	recordExecOutcome("harvestFruit", err)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Harvest confirmed", "lot_id", lotID, "quantity", req.Quantity, "tx_hash", receipt.ConfirmationRef)
	return &HarvestResult{LotID: lotID, ConfirmationRef: receipt.ConfirmationRef}, nil
}

// RegisterFarm registers the farm on the ledger and mirrors it
func (e *Engine) RegisterFarm(ctx context.Context, sess Session, farm *models.Farm) error {
	if err := e.verifyEnvironment(ctx); err != nil {
		return err
	}

	farm.OwnerAddress = sess.Identity
	if err := e.boot.EnsureFarm(ctx, sess.execOpts("farm"), farm.ID, farm.Location, farm.Climate, farm.Soil, farm.Conditions); err != nil {
		recordExecOutcome("registerFarm", err)
		return err
	}
	recordExecOutcome("registerFarm", nil)
	return e.sync.RecordFarm(farm, "")
}

// ReceiveShipment moves an incoming shipment to received. The carrier
// must report the shipment as in transit, anything else rejects the
// transition before any state is touched.
func (e *Engine) ReceiveShipment(ctx context.Context, sess Session, shipmentID string) (*models.Shipment, error) {
	shipment, repoErr := e.store.GetShipment(shipmentID)
	if repoErr != nil {
		return nil, repoErr
	}
	if err := ShipmentTransition(shipment.Status, models.ShipmentReceived); err != nil {
		return nil, err
	}
	if shipment.CarrierStatus != models.CarrierInTransit {
		return nil, &InvalidTransitionError{Entity: "shipment", From: shipment.CarrierStatus, To: models.ShipmentReceived}
	}

	ref := ""
	if shipment.TxHash != nil {
		ref = *shipment.TxHash
	}
	if err := e.sync.RecordReceipt(shipmentID, ref); err != nil {
		return nil, err
	}
	shipment.Status = models.ShipmentReceived
	return shipment, nil
}

// AddToInventoryRequest stocks received goods as an inventory row
type AddToInventoryRequest struct {
	InventoryID string
	ProductID   string
	ShipmentID  string
	Quantity    uint64
}

// AddToInventory creates the stock row and, when the goods arrived via
// a shipment, advances it to inventoried
func (e *Engine) AddToInventory(ctx context.Context, sess Session, req AddToInventoryRequest) (*models.InventoryItem, error) {
	if _, repoErr := e.store.GetProduct(req.ProductID); repoErr != nil {
		return nil, repoErr
	}

	if req.ShipmentID != "" {
		shipment, repoErr := e.store.GetShipment(req.ShipmentID)
		if repoErr != nil {
			return nil, repoErr
		}
		if err := ShipmentTransition(shipment.Status, models.ShipmentInventoried); err != nil {
			return nil, err
		}
	}

	inventoryID := req.InventoryID
	if inventoryID == "" {
		inventoryID = "INV-" + sess.shortRef()
	}
	item := &models.InventoryItem{
		ID:           inventoryID,
		ProductID:    req.ProductID,
		OwnerAddress: sess.Identity,
		Quantity:     req.Quantity,
	}
	if repoErr := e.store.CreateInventoryItem(item); repoErr != nil {
		return nil, repoErr
	}

	if req.ShipmentID != "" {
		if repoErr := e.store.UpdateShipmentStatus(req.ShipmentID, models.ShipmentInventoried); repoErr != nil {
			e.logger.Error("Failed to advance shipment after stocking", "shipment_id", req.ShipmentID, "err", repoErr)
		}
	}
	return item, nil
}

// ShipToCustomerRequest fulfils a pending order
type ShipToCustomerRequest struct {
	OrderID string
	Carrier string
}

// ShipToCustomer checks stock, decrements inventory, creates the
// outgoing shipment and advances the order to shipped
func (e *Engine) ShipToCustomer(ctx context.Context, sess Session, req ShipToCustomerRequest) (*models.Shipment, error) {
	order, repoErr := e.store.GetOrder(req.OrderID)
	if repoErr != nil {
		return nil, repoErr
	}
	if err := OrderTransition(order.Status, models.OrderShipped); err != nil {
		return nil, err
	}

	listing, repoErr := e.store.GetListing(order.ListingID)
	if repoErr != nil {
		return nil, repoErr
	}
	if listing.InventoryID == nil {
		return nil, &SyncDivergenceError{
			Kind:     models.SyncKindListing,
			TargetID: fmt.Sprint(order.ListingID),
			Cause:    fmt.Errorf("listing mirror has no inventory reference"),
		}
	}
	item, repoErr := e.store.GetInventoryItem(*listing.InventoryID)
	if repoErr != nil {
		return nil, repoErr
	}
	if item.Quantity < order.Quantity {
		return nil, &InsufficientStockError{Available: item.Quantity, Requested: order.Quantity}
	}

	if repoErr := e.store.AdjustInventoryQuantity(item.ID, -int64(order.Quantity)); repoErr != nil {
		return nil, repoErr
	}

	shipment := &models.Shipment{
		ID:            "SHP-" + sess.shortRef(),
		InventoryID:   listing.InventoryID,
		LotID:         &listing.LotID,
		OrderID:       &order.ID,
		Carrier:       req.Carrier,
		CarrierStatus: models.CarrierInTransit,
		Status:        models.ShipmentOutgoing,
		TxHash:        order.TxHash,
	}
	if repoErr := e.store.CreateShipment(shipment); repoErr != nil {
		return nil, repoErr
	}
	if repoErr := e.store.UpdateOrderStatus(order.ID, models.OrderShipped); repoErr != nil {
		return nil, repoErr
	}

	e.logger.Info("Order shipped", "order_id", order.ID, "shipment_id", shipment.ID, "carrier", req.Carrier)
	return shipment, nil
}

// CancelOrder exits a pending order. Cancellation is disallowed once
// the order shipped.
func (e *Engine) CancelOrder(ctx context.Context, sess Session, orderID string) error {
	order, repoErr := e.store.GetOrder(orderID)
	if repoErr != nil {
		return repoErr
	}
	if err := OrderTransition(order.Status, models.OrderCancelled); err != nil {
		return err
	}
	if repoErr := e.store.UpdateOrderStatus(orderID, models.OrderCancelled); repoErr != nil {
		return repoErr
	}
	return nil
}

// MarkDelivered completes a shipped order
func (e *Engine) MarkDelivered(ctx context.Context, sess Session, orderID string) error {
	order, repoErr := e.store.GetOrder(orderID)
	if repoErr != nil {
		return repoErr
	}
	if err := OrderTransition(order.Status, models.OrderDelivered); err != nil {
		return err
	}
	if repoErr := e.store.UpdateOrderStatus(orderID, models.OrderDelivered); repoErr != nil {
		return repoErr
	}
	return nil
}

// SyncProduct is the manual divergence repair: it re-reads the listing
// from the ledger, the source of truth, and rewrites the mirror row
func (e *Engine) SyncProduct(ctx context.Context, sess Session, listingID uint64) (*models.Listing, error) {
	listed, err := e.chain.GetListedProduct(ctx, listingID)
	if err != nil {
		return nil, err
	}

	listing := &models.Listing{
		ListingID: listed.ListingID,
		LotID:     listed.LotID,
		Price:     listed.Price,
		Quantity:  listed.Quantity,
		IsActive:  listed.IsActive,
	}
	if repoErr := e.store.UpsertListing(listing); repoErr != nil {
		return nil, repoErr
	}
	e.logger.Info("Listing mirror repaired from ledger", "listing_id", listingID)
	return listing, nil
}

// AddManager grants the manager role on the contract. Access control
// lives on the contract itself, a non-owner caller gets the revert.
func (e *Engine) AddManager(ctx context.Context, sess Session, address string) (string, error) {
	if err := e.verifyEnvironment(ctx); err != nil {
		return "", err
	}
	receipt, err := e.chain.AddManager(ctx, sess.execOpts("manager"), address)
	recordExecOutcome("addManager", err)
	if err != nil {
		return "", err
	}
	e.logger.Info("Manager added", "address", address, "tx_hash", receipt.ConfirmationRef)
	return receipt.ConfirmationRef, nil
}

// CheckRole resolves the caller's role from the contract's access
// control state
func (e *Engine) CheckRole(ctx context.Context, identity string) (string, error) {
	owner, err := e.chain.Owner(ctx)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(owner, identity) {
		return "owner", nil
	}
	manager, err := e.chain.AuthorizedManagers(ctx, identity)
	if err != nil {
		return "", err
	}
	if manager {
		return "manager", nil
	}
	return "customer", nil
}
