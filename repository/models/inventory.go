package models

import "time"

// InventoryItem is stock held by an intermediary. FruitID mirrors the
// ledger-assigned lot id, it transitions from unset to set exactly once.
// Quantity must never exceed the quantity the ledger reports for the lot.
type InventoryItem struct {
	ID           string    `gorm:"column:inventory_id;primaryKey;type:varchar(50)" json:"inventory_id"`
	ProductID    string    `gorm:"column:product_id;type:varchar(50);index" json:"product_id"`
	Product      *Product  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	OwnerAddress string    `gorm:"column:owner_address;type:varchar(66);index" json:"owner_address"`
	FruitID      *uint64   `gorm:"column:fruit_id" json:"fruit_id,omitempty"`
	Quantity     uint64    `gorm:"column:quantity;default:0" json:"quantity"`
	Status       string    `gorm:"column:status;type:varchar(20);default:'stocked'" json:"status"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
