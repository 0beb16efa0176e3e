package models

import "time"

// Purchase order lifecycle values
const (
	OrderPending   = "pending"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// PurchaseOrder is the mirror row of a confirmed purchase, holding the
// customer data the ledger does not model
type PurchaseOrder struct {
	ID              string    `gorm:"column:order_id;primaryKey;type:varchar(50)" json:"order_id"`
	ListingID       uint64    `gorm:"column:listing_id;index;not null" json:"listing_id"`
	BuyerAddress    string    `gorm:"column:buyer_address;type:varchar(66);index" json:"buyer_address"`
	CustomerName    string    `gorm:"column:customer_name;type:varchar(100)" json:"customer_name"`
	ShippingAddress string    `gorm:"column:shipping_address;type:text" json:"shipping_address"`
	Quantity        uint64    `gorm:"column:quantity;not null" json:"quantity"`
	Status          string    `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"`
	TxHash          *string   `gorm:"column:tx_hash;type:varchar(66)" json:"tx_hash,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
