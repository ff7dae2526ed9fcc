package models

import (
	"time"
)

// EntityVersion is the single generic optimistic-lock registry:
// (entity_type, entity_id) -> version. Writers compare-and-swap the version
// at completion; a failed swap means a concurrent writer got there first.
// There is no background sweeper; staleness is detected lazily at the next
// CAS, with UpdatedAt kept for operator inspection.
type EntityVersion struct {
	ID         int       `gorm:"primary_key" json:"id"`
	EntityType string    `gorm:"size:50;not null;uniqueIndex:uq_entity_version,priority:1" json:"entity_type"`
	EntityId   int       `gorm:"not null;uniqueIndex:uq_entity_version,priority:2" json:"entity_id"`
	Version    int       `gorm:"not null;default:0" json:"version"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
