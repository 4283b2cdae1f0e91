package model

import (
	"time"

	"gorm.io/datatypes"
)

// BaseModel handles the audit timestamps of persisted rows.
type BaseModel struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreEntry is one committed key of a partition store collection, mirrored
// to postgres so a restarted partition can rebuild its state.
type StoreEntry struct {
	PartitionID int            `gorm:"primaryKey;autoIncrement:false" json:"partition_id"`
	Collection  string         `gorm:"primaryKey;type:varchar(64)" json:"collection"`
	EntryKey    string         `gorm:"primaryKey;type:varchar(128)" json:"key"`
	Value       datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`
	Seq         uint64         `gorm:"not null;index" json:"seq"`
	BaseModel
}

func (StoreEntry) TableName() string { return "store_entries" }
