package eventstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/debitumapp/debitum/pkg/db/models"
)

// Repository persists and streams wallet event log rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// StoreBatch appends the records inside one transaction and, if after is
// non-nil, runs it in the same transaction once all rows are in. The
// (wallet_id, event_id) unique index rejects duplicate appends, so a
// concurrent push of the same event rolls the batch back rather than double
// storing.
func (r *Repository) StoreBatch(ctx context.Context, records []models.EventRecord, after func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if err := tx.Create(&records[i]).Error; err != nil {
				return err
			}
		}
		if after != nil {
			return after(tx)
		}
		return nil
	})
}

// Exists reports whether an event with the given id is already stored for
// the wallet.
func (r *Repository) Exists(ctx context.Context, walletID, eventID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.EventRecord{}).
		Where("wallet_id = ? AND event_id = ?", walletID, eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByEventID loads a single stored event for the wallet.
func (r *Repository) FindByEventID(ctx context.Context, walletID, eventID uuid.UUID) (*models.EventRecord, error) {
	var record models.EventRecord
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND event_id = ?", walletID, eventID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ListSince streams the wallet's events strictly after the (since, afterID)
// cursor in (event_ts, event_id) order. The event id breaks timestamp ties,
// so a page boundary inside a group of equal timestamps never skips rows: the
// next page resumes at the id the previous page ended on. A zero cursor
// returns the full log. Pass limit <= 0 for no page cap.
func (r *Repository) ListSince(ctx context.Context, walletID uuid.UUID, since time.Time, afterID uuid.UUID, limit int) ([]models.EventRecord, error) {
	q := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("event_ts ASC, event_id ASC")
	if !since.IsZero() {
		if afterID != uuid.Nil {
			q = q.Where("event_ts > ? OR (event_ts = ? AND event_id > ?)", since, since, afterID)
		} else {
			q = q.Where("event_ts > ?", since)
		}
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []models.EventRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListAll returns every event for the wallet in (event_ts, event_id) order.
func (r *Repository) ListAll(ctx context.Context, walletID uuid.UUID) ([]models.EventRecord, error) {
	return r.ListSince(ctx, walletID, time.Time{}, uuid.Nil, 0)
}

// ListForAggregate returns one aggregate's full event history in
// (event_ts, event_id) order.
func (r *Repository) ListForAggregate(ctx context.Context, walletID uuid.UUID, aggregateType string, aggregateID uuid.UUID) ([]models.EventRecord, error) {
	var records []models.EventRecord
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND aggregate_type = ? AND aggregate_id = ?", walletID, aggregateType, aggregateID).
		Order("event_ts ASC, event_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CountByWallet returns the number of stored events for the wallet.
func (r *Repository) CountByWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.EventRecord{}).
		Where("wallet_id = ?", walletID).
		Count(&count).Error
	return count, err
}
