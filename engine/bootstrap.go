package engine

import (
	"context"
	"strings"

	"fruitchain/ledger"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Bootstrapper idempotently creates the on-chain prerequisite records a
// dependent action needs: catalog entries, farms and harvest lots. Each
// check-then-create is safe to re-run; it is not atomic against
// concurrent callers, the ledger itself enforces the final invariants
// and duplicate creations surface as tolerated "already exists" reverts.
type Bootstrapper struct {
	chain  Chain
	logger cmtlog.Logger
}

// NewBootstrapper creates a bootstrapper over the contract surface
func NewBootstrapper(chain Chain, logger cmtlog.Logger) *Bootstrapper {
	return &Bootstrapper{chain: chain, logger: logger}
}

// duplicateCreation reports whether a revert came from re-creating a
// record that already exists. A concurrent caller winning the race is
// the same on-chain state we wanted, never fatal.
func duplicateCreation(err error) bool {
	le, ok := err.(*ledger.Error)
	if !ok || le.Code != ledger.CodeReverted {
		return false
	}
	reason := strings.ToLower(le.Message + " " + le.Detail)
	return strings.Contains(reason, "exist")
}

// EnsureCatalogEntry creates the fruit catalog entry on-chain if absent
func (b *Bootstrapper) EnsureCatalogEntry(ctx context.Context, opts ledger.ExecOpts, entry ledger.CatalogEntry) error {
	existing, err := b.chain.GetFruitCatalog(ctx, entry.FruitType)
	if err != nil {
		if !ledger.IsCode(err, ledger.CodeReverted) {
			return err
		}
		// a revert on the read means the entry is absent
	} else if existing.Exists {
		return nil
	}

	if _, err := b.chain.AddFruitCatalog(ctx, opts, entry); err != nil {
		if duplicateCreation(err) {
			b.logger.Info("Catalog entry already created, continuing", "fruit_type", entry.FruitType)
			return nil
		}
		return err
	}
	b.logger.Info("Catalog entry created on ledger", "fruit_type", entry.FruitType)
	return nil
}

// EnsureFarm registers the farm on-chain if absent
func (b *Bootstrapper) EnsureFarm(ctx context.Context, opts ledger.ExecOpts, farmID, location, climate, soil, conditions string) error {
	registered, err := b.chain.IsFarmRegistered(ctx, farmID)
	if err != nil {
		return err
	}
	if registered {
		return nil
	}

	if _, err := b.chain.RegisterFarm(ctx, opts, farmID, location, climate, soil, conditions); err != nil {
		if duplicateCreation(err) {
			b.logger.Info("Farm already registered, continuing", "farm_id", farmID)
			return nil
		}
		return err
	}
	b.logger.Info("Farm registered on ledger", "farm_id", farmID)
	return nil
}

// EnsureHarvestLot guarantees a lot for (fruitType, farmID, origin)
// holding at least minQuantity. An existing lot short of minQuantity is
// topped up with an additional harvest for the deficit rather than
// failing the pending operation. Returns the lot id.
func (b *Bootstrapper) EnsureHarvestLot(ctx context.Context, opts ledger.ExecOpts, fruitType, origin, farmID, quality string, minQuantity uint64) (uint64, error) {
	lot, err := b.findLot(ctx, fruitType, farmID, origin)
	if err != nil {
		return 0, err
	}

	if lot == nil {
		_, lotID, err := b.chain.HarvestFruit(ctx, opts, fruitType, origin, farmID, quality, minQuantity)
		if err != nil {
			return 0, err
		}
		b.logger.Info("Harvest lot created on ledger", "lot_id", lotID, "fruit_type", fruitType, "quantity", minQuantity)
		return lotID, nil
	}

	if lot.Quantity >= minQuantity {
		return lot.ID, nil
	}

	deficit := minQuantity - lot.Quantity
	b.logger.Info("Harvest lot short of required quantity, topping up",
		"lot_id", lot.ID, "held", lot.Quantity, "required", minQuantity, "deficit", deficit)
	_, lotID, err := b.chain.HarvestFruit(ctx, opts, fruitType, origin, farmID, quality, deficit)
	if err != nil {
		return 0, err
	}
	return lotID, nil
}

// findLot scans the ledger's lots newest-first for one matching the
// fruit type, farm and origin
func (b *Bootstrapper) findLot(ctx context.Context, fruitType, farmID, origin string) (*ledger.FruitLot, error) {
	count, err := b.chain.FruitCount(ctx)
	if err != nil {
		return nil, err
	}
	for id := count; id >= 1; id-- {
		lot, err := b.chain.GetFruit(ctx, id)
		if err != nil {
			if ledger.IsCode(err, ledger.CodeReverted) {
				continue
			}
			return nil, err
		}
		if lot.FruitType == fruitType && lot.FarmID == farmID && lot.Origin == origin {
			return lot, nil
		}
	}
	return nil, nil
}
