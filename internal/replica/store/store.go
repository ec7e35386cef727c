// Package store is the replica's local persistence: a sqlite event log with
// per-event sync markers plus a small key/value table for watermarks. The
// replica works entirely from this store while offline and reconciles it
// with the server during sync.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/debitumapp/debitum/internal/events"
)

// LocalEvent is one locally stored event. Synced flips to true once the
// server has acknowledged the event.
type LocalEvent struct {
	Seq           int64           `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID       uuid.UUID       `gorm:"column:event_id;type:uuid;not null;uniqueIndex"`
	AggregateType string          `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID       `gorm:"column:aggregate_id;type:uuid;not null"`
	EventType     string          `gorm:"column:event_type;not null"`
	EventData     json.RawMessage `gorm:"column:event_data"`
	EventTS       time.Time       `gorm:"column:event_ts;not null"`
	Version       int             `gorm:"column:version;not null;default:1"`
	Synced        bool            `gorm:"column:synced;not null;default:false"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the replica log under local_events.
func (LocalEvent) TableName() string { return "local_events" }

// KVEntry is a replica-local key/value row, used for the pull watermark.
type KVEntry struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;not null"`
}

// TableName keeps replica metadata under kv.
func (KVEntry) TableName() string { return "kv" }

const (
	watermarkKey   = "pull_watermark"
	watermarkIDKey = "pull_watermark_id"
)

// Store wraps the replica's sqlite database.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite store at path. Use ":memory:" in
// tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&LocalEvent{}, &KVEntry{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append stores one event. synced marks events that arrived from the server
// rather than local edits.
func (s *Store) Append(ctx context.Context, e events.Event, synced bool) error {
	row := toRow(e, synced)
	return s.db.WithContext(ctx).Create(&row).Error
}

// AppendIfAbsent stores the event unless its id is already present. Used for
// pulled events, where re-downloading an overlap must not duplicate rows.
func (s *Store) AppendIfAbsent(ctx context.Context, e events.Event, synced bool) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&LocalEvent{}).
		Where("event_id = ?", e.ID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := s.Append(ctx, e, synced); err != nil {
		return false, err
	}
	return true, nil
}

// ListAll returns every stored event in insertion order.
func (s *Store) ListAll(ctx context.Context) ([]events.Event, error) {
	var rows []LocalEvent
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// ListUnsynced returns locally created events the server has not
// acknowledged yet, oldest first.
func (s *Store) ListUnsynced(ctx context.Context) ([]events.Event, error) {
	var rows []LocalEvent
	err := s.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// FindByEventID loads one event, or nil when absent.
func (s *Store) FindByEventID(ctx context.Context, eventID uuid.UUID) (*events.Event, error) {
	var row LocalEvent
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	e := fromRow(row)
	return &e, nil
}

// ListForAggregate returns one aggregate's event history in
// (event_ts, event_id) order. Undo reads this to find its target.
func (s *Store) ListForAggregate(ctx context.Context, aggregateType events.AggregateType, aggregateID uuid.UUID) ([]events.Event, error) {
	var rows []LocalEvent
	err := s.db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", string(aggregateType), aggregateID).
		Order("event_ts ASC, event_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return fromRows(rows), nil
}

// MarkSynced flips the sync marker for the given event ids.
func (s *Store) MarkSynced(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&LocalEvent{}).
		Where("event_id IN ?", ids).
		Update("synced", true).Error
}

// DeleteByEventIDs removes the given events from the local log. Used when
// the server permanently rejects an event.
func (s *Store) DeleteByEventIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("event_id IN ?", ids).
		Delete(&LocalEvent{}).Error
}

// ReplaceAll swaps the entire local log for the server's, marking everything
// synced. Used on first sync and on hash divergence when the replica holds
// nothing unsynced worth keeping.
func (s *Store) ReplaceAll(ctx context.Context, list []events.Event) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&LocalEvent{}).Error; err != nil {
			return err
		}
		for _, e := range list {
			row := toRow(e, true)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CountEvents returns the local log size.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&LocalEvent{}).Count(&count).Error
	return count, err
}

// Watermark returns the pull cursor: the timestamp of the newest event pulled
// from the server and the id of the last event seen at that timestamp. Both
// are zero before the first pull.
func (s *Store) Watermark(ctx context.Context) (time.Time, uuid.UUID, error) {
	ts := time.Time{}
	if raw, err := s.kvGet(ctx, watermarkKey); err != nil {
		return time.Time{}, uuid.Nil, err
	} else if raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, uuid.Nil, err
		}
		ts = parsed.UTC()
	}

	lastID := uuid.Nil
	if raw, err := s.kvGet(ctx, watermarkIDKey); err != nil {
		return time.Time{}, uuid.Nil, err
	} else if raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return time.Time{}, uuid.Nil, err
		}
		lastID = parsed
	}
	return ts, lastID, nil
}

// SetWatermark stores the pull cursor.
func (s *Store) SetWatermark(ctx context.Context, ts time.Time, lastID uuid.UUID) error {
	row := KVEntry{Key: watermarkKey, Value: ts.UTC().Format(time.RFC3339Nano)}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return err
	}
	idRow := KVEntry{Key: watermarkIDKey, Value: lastID.String()}
	return s.db.WithContext(ctx).Save(&idRow).Error
}

func (s *Store) kvGet(ctx context.Context, key string) (string, error) {
	var row KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.Value, nil
}

func toRow(e events.Event, synced bool) LocalEvent {
	return LocalEvent{
		EventID:       e.ID,
		AggregateType: string(e.AggregateType),
		AggregateID:   e.AggregateID,
		EventType:     string(e.EventType),
		EventData:     e.EventData,
		EventTS:       e.Timestamp.UTC(),
		Version:       e.Version,
		Synced:        synced,
	}
}

func fromRow(row LocalEvent) events.Event {
	return events.Event{
		ID:            row.EventID,
		AggregateType: events.AggregateType(row.AggregateType),
		AggregateID:   row.AggregateID,
		EventType:     events.EventType(row.EventType),
		EventData:     row.EventData,
		Timestamp:     row.EventTS.UTC(),
		Version:       row.Version,
	}
}

func fromRows(rows []LocalEvent) []events.Event {
	out := make([]events.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out
}
