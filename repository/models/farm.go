package models

import "time"

// Farm is the mirror row of an on-chain farm record, plus the
// human-readable fields the ledger does not model
type Farm struct {
	ID           string    `gorm:"column:farm_id;primaryKey;type:varchar(50)" json:"farm_id"`
	Name         string    `gorm:"column:name;type:varchar(100)" json:"name"`
	Location     string    `gorm:"column:location;type:varchar(100)" json:"location"`
	Climate      string    `gorm:"column:climate;type:varchar(50)" json:"climate"`
	Soil         string    `gorm:"column:soil;type:varchar(50)" json:"soil"`
	Conditions   string    `gorm:"column:conditions;type:text" json:"conditions"`
	OwnerAddress string    `gorm:"column:owner_address;type:varchar(66);index" json:"owner_address"`
	OnLedger     bool      `gorm:"column:on_ledger;default:false" json:"on_ledger"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
