package ledger

import (
	"context"
)

// Event types and attribute keys emitted by the supply chain contract
const (
	EventFruitHarvested   = "fruit_harvested"
	EventProductListed    = "product_listed"
	EventProductPurchased = "product_purchased"

	AttrLotID     = "lot_id"
	AttrListingID = "listing_id"
)

// FarmData mirrors the on-chain farm record
type FarmData struct {
	Location    string   `json:"location"`
	Climate     string   `json:"climate"`
	Soil        string   `json:"soil"`
	LastUpdated int64    `json:"last_updated"`
	Conditions  string   `json:"conditions"`
	Owner       string   `json:"owner"`
	LotIDs      []uint64 `json:"lot_ids"`
}

// CatalogEntry mirrors the on-chain fruit catalog record
type CatalogEntry struct {
	FruitType   string   `json:"fruit_type"`
	Description string   `json:"description"`
	Season      string   `json:"season"`
	Nutrition   string   `json:"nutrition"`
	Storage     string   `json:"storage"`
	Varieties   []string `json:"varieties"`
	Exists      bool     `json:"exists"`
}

// FruitLot mirrors an on-chain harvest lot
type FruitLot struct {
	ID        uint64 `json:"id"`
	FruitType string `json:"fruit_type"`
	Origin    string `json:"origin"`
	FarmID    string `json:"farm_id"`
	Quality   string `json:"quality"`
	Quantity  uint64 `json:"quantity"`
}

// ListedProduct mirrors an on-chain listing
type ListedProduct struct {
	ListingID uint64 `json:"listing_id"`
	LotID     uint64 `json:"lot_id"`
	Price     uint64 `json:"price"`
	Quantity  uint64 `json:"quantity"`
	IsActive  bool   `json:"is_active"`
}

// Contract is the typed surface of the deployed supply chain contract.
// The contract itself is an external collaborator, this wrapper only
// shapes calls and decodes results.
type Contract struct {
	gateway *Gateway
}

// NewContract wraps the gateway with the typed contract surface
func NewContract(gateway *Gateway) *Contract {
	return &Contract{gateway: gateway}
}

func (c *Contract) IsFarmRegistered(ctx context.Context, farmID string) (bool, error) {
	var registered bool
	err := c.gateway.Call(ctx, "isFarmRegistered", []any{farmID}, &registered)
	return registered, err
}

func (c *Contract) GetFarmData(ctx context.Context, farmID string) (*FarmData, error) {
	var data FarmData
	if err := c.gateway.Call(ctx, "getFarmData", []any{farmID}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Contract) RegisterFarm(ctx context.Context, opts ExecOpts, farmID, location, climate, soil, conditions string) (*Receipt, error) {
	return c.gateway.Execute(ctx, "registerFarm", []any{farmID, location, climate, soil, conditions}, opts)
}

func (c *Contract) GetFruitCatalog(ctx context.Context, fruitType string) (*CatalogEntry, error) {
	var entry CatalogEntry
	if err := c.gateway.Call(ctx, "getFruitCatalog", []any{fruitType}, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Contract) AddFruitCatalog(ctx context.Context, opts ExecOpts, entry CatalogEntry) (*Receipt, error) {
	return c.gateway.Execute(ctx, "addFruitCatalog", []any{
		entry.FruitType, entry.Description, entry.Season, entry.Nutrition, entry.Storage, entry.Varieties,
	}, opts)
}

func (c *Contract) FruitCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := c.gateway.Call(ctx, "fruitCount", []any{}, &count)
	return count, err
}

func (c *Contract) GetFruit(ctx context.Context, lotID uint64) (*FruitLot, error) {
	var lot FruitLot
	if err := c.gateway.Call(ctx, "getFruit", []any{lotID}, &lot); err != nil {
		return nil, err
	}
	return &lot, nil
}

// HarvestFruit records a harvest on the ledger and returns the receipt
// together with the lot id the ledger assigned or credited
func (c *Contract) HarvestFruit(ctx context.Context, opts ExecOpts, fruitType, origin, farmID, quality string, quantity uint64) (*Receipt, uint64, error) {
	receipt, err := c.gateway.Execute(ctx, "harvestFruit", []any{fruitType, origin, farmID, quality, quantity}, opts)
	if err != nil {
		return nil, 0, err
	}
	lotID, ok := receipt.EmittedUint(EventFruitHarvested, AttrLotID)
	if !ok {
		return receipt, 0, &Error{
			Code:    CodeReverted,
			Message: "confirmation carried no lot id",
			Detail:  "tx " + receipt.ConfirmationRef,
		}
	}
	return receipt, lotID, nil
}

func (c *Contract) GetListedProduct(ctx context.Context, listingID uint64) (*ListedProduct, error) {
	var listing ListedProduct
	if err := c.gateway.Call(ctx, "getListedProduct", []any{listingID}, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListProductForSale puts a lot up for sale and returns the ledger
// assigned listing id. Once assigned the id is immutable and unique.
func (c *Contract) ListProductForSale(ctx context.Context, opts ExecOpts, lotID, price, quantity uint64, active bool) (*Receipt, uint64, error) {
	receipt, err := c.gateway.Execute(ctx, "listProductForSale", []any{lotID, price, quantity, active}, opts)
	if err != nil {
		return nil, 0, err
	}
	listingID, ok := receipt.EmittedUint(EventProductListed, AttrListingID)
	if !ok {
		return receipt, 0, &Error{
			Code:    CodeReverted,
			Message: "confirmation carried no listing id",
			Detail:  "tx " + receipt.ConfirmationRef,
		}
	}
	return receipt, listingID, nil
}

// PurchaseProduct executes the payable purchase call, opts.Value must
// cover the listing price
func (c *Contract) PurchaseProduct(ctx context.Context, opts ExecOpts, listingID uint64) (*Receipt, error) {
	return c.gateway.Execute(ctx, "purchaseProduct", []any{listingID}, opts)
}

func (c *Contract) Owner(ctx context.Context) (string, error) {
	var owner string
	err := c.gateway.Call(ctx, "owner", []any{}, &owner)
	return owner, err
}

func (c *Contract) AuthorizedManagers(ctx context.Context, address string) (bool, error) {
	var authorized bool
	err := c.gateway.Call(ctx, "authorizedManagers", []any{address}, &authorized)
	return authorized, err
}

// AddManager is access-controlled to the contract owner
func (c *Contract) AddManager(ctx context.Context, opts ExecOpts, address string) (*Receipt, error) {
	return c.gateway.Execute(ctx, "addManager", []any{address}, opts)
}
