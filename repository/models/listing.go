package models

import "time"

// Listing mirrors an on-chain listing. The listing id is assigned by
// the ledger and is immutable and unique once written.
type Listing struct {
	ListingID   uint64    `gorm:"column:listing_id;primaryKey;autoIncrement:false" json:"listing_id"`
	LotID       uint64    `gorm:"column:lot_id;index;not null" json:"lot_id"`
	InventoryID *string   `gorm:"column:inventory_id;type:varchar(50);index" json:"inventory_id,omitempty"`
	Price       uint64    `gorm:"column:price;not null" json:"price"`
	Quantity    uint64    `gorm:"column:quantity;not null" json:"quantity"`
	IsActive    bool      `gorm:"column:is_active;default:true" json:"is_active"`
	TxHash      string    `gorm:"column:tx_hash;type:varchar(66)" json:"tx_hash"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
