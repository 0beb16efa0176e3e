package models

import "time"

// Sync task kinds
const (
	SyncKindListing  = "listing"
	SyncKindPurchase = "purchase"
	SyncKindReceipt  = "receipt"
	SyncKindFarm     = "farm"
)

// SyncTask is a reconciliation row written when the ledger confirmed a
// mutation but the mirror write failed. It carries everything a repair
// pass needs: the confirmation reference and the intended mirror values.
type SyncTask struct {
	ID              uint       `gorm:"column:task_id;primaryKey" json:"task_id"`
	Kind            string     `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	TargetID        string     `gorm:"column:target_id;type:varchar(50);index" json:"target_id"`
	ConfirmationRef string     `gorm:"column:confirmation_ref;type:varchar(66);index" json:"confirmation_ref"`
	Payload         string     `gorm:"column:payload;type:text" json:"payload"`
	Resolved        bool       `gorm:"column:resolved;default:false;index" json:"resolved"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}
