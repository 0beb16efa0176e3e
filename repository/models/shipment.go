package models

import "time"

// Shipment lifecycle values
const (
	ShipmentIncoming    = "incoming"
	ShipmentReceived    = "received"
	ShipmentInventoried = "inventoried"
	ShipmentListed      = "listed"
	ShipmentOutgoing    = "outgoing"
	ShipmentSold        = "sold"
)

// CarrierInTransit is the carrier-side status a shipment must report
// before it can be received
const CarrierInTransit = "in transit"

// Shipment is the mirror row of a physical movement of stock
type Shipment struct {
	ID            string    `gorm:"column:shipment_id;primaryKey;type:varchar(50)" json:"shipment_id"`
	LotID         *uint64   `gorm:"column:lot_id;index" json:"lot_id,omitempty"`
	InventoryID   *string   `gorm:"column:inventory_id;type:varchar(50);index" json:"inventory_id,omitempty"`
	OrderID       *string   `gorm:"column:order_id;type:varchar(50);index" json:"order_id,omitempty"`
	Carrier       string    `gorm:"column:carrier;type:varchar(100)" json:"carrier"`
	CarrierStatus string    `gorm:"column:carrier_status;type:varchar(30)" json:"carrier_status"`
	Status        string    `gorm:"column:status;type:varchar(20);default:'incoming'" json:"status"`
	TxHash        *string   `gorm:"column:tx_hash;type:varchar(66)" json:"tx_hash,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
