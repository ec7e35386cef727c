package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventRecord is one row of the append-only wallet event log. Seq is a
// server-side sequence used only as a stable tie-break when streaming events
// in timestamp order; EventID is the replica-assigned identity that dedup
// and undo targeting key on.
type EventRecord struct {
	Seq           int64           `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID       uuid.UUID       `gorm:"column:event_id;type:uuid;not null;uniqueIndex:idx_events_wallet_event,priority:2"`
	WalletID      uuid.UUID       `gorm:"column:wallet_id;type:uuid;not null;uniqueIndex:idx_events_wallet_event,priority:1"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	AggregateType string          `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID       `gorm:"column:aggregate_id;type:uuid;not null"`
	EventType     string          `gorm:"column:event_type;not null"`
	EventData     json.RawMessage `gorm:"column:event_data;type:jsonb"`
	EventTS       time.Time       `gorm:"column:event_ts;not null"`
	Version       int             `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the log under the plain events table.
func (EventRecord) TableName() string { return "events" }
