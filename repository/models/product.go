package models

import "time"

// Product is the mirror row of a fruit catalog entry. Created once per
// distinct fruit type on first reference, effectively immutable after.
type Product struct {
	ID          string    `gorm:"column:product_id;primaryKey;type:varchar(50)" json:"product_id"`
	FruitType   string    `gorm:"column:fruit_type;type:varchar(50);uniqueIndex;not null" json:"fruit_type"`
	Name        string    `gorm:"column:name;type:varchar(100)" json:"name"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	Season      string    `gorm:"column:season;type:varchar(50)" json:"season"`
	Nutrition   string    `gorm:"column:nutrition;type:text" json:"nutrition"`
	Storage     string    `gorm:"column:storage;type:text" json:"storage"`
	Varieties   string    `gorm:"column:varieties;type:text" json:"varieties"` // comma separated
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	// Relationships
	InventoryItems []InventoryItem `gorm:"foreignKey:ProductID" json:"inventory_items,omitempty"`
}
