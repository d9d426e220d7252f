package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
	ActionUpdated = "updated"
)

// AuditLogEntry только дописывается.
type AuditLogEntry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	Actor     string         `gorm:"size:255;not null" json:"actor"`
	Action    string         `gorm:"size:32;not null" json:"action"`
	Target    string         `gorm:"size:255" json:"target"`
	Details   datatypes.JSON `json:"details,omitempty"`
}

func (AuditLogEntry) TableName() string { return "audit_log" }
