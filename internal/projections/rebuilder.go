// Package projections maintains and serves the server-side read models
// derived from the wallet event log. The projection tables are disposable:
// Rebuild refolds the log from scratch, so the log stays the single source
// of truth.
package projections

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/internal/ledger"
	"github.com/debitumapp/debitum/pkg/db/models"
)

// Rebuilder refolds a wallet's event log into the projection tables.
type Rebuilder struct{}

// NewRebuilder returns a Rebuilder.
func NewRebuilder() *Rebuilder {
	return &Rebuilder{}
}

// Rebuild replaces the wallet's projection rows inside the caller's
// transaction. It runs as part of the same transaction that appends new
// events, so readers never observe a log/projection mismatch.
func (r *Rebuilder) Rebuild(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) error {
	var records []models.EventRecord
	err := tx.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("event_ts ASC, seq ASC").
		Find(&records).Error
	if err != nil {
		return err
	}

	list := make([]events.Event, 0, len(records))
	for _, record := range records {
		list = append(list, events.Event{
			ID:            record.EventID,
			AggregateType: events.AggregateType(record.AggregateType),
			AggregateID:   record.AggregateID,
			EventType:     events.EventType(record.EventType),
			EventData:     record.EventData,
			Timestamp:     record.EventTS.UTC(),
			Version:       record.Version,
		})
	}
	state := ledger.Build(list)

	db := tx.WithContext(ctx)
	if err := db.Where("wallet_id = ?", walletID).Delete(&models.ContactProjection{}).Error; err != nil {
		return err
	}
	if err := db.Where("wallet_id = ?", walletID).Delete(&models.TransactionProjection{}).Error; err != nil {
		return err
	}

	if len(state.Contacts) > 0 {
		rows := make([]models.ContactProjection, 0, len(state.Contacts))
		for _, c := range state.Contacts {
			rows = append(rows, models.ContactProjection{
				WalletID:  walletID,
				ID:        c.ID,
				Name:      c.Name,
				Username:  c.Username,
				Phone:     c.Phone,
				Email:     c.Email,
				Notes:     c.Notes,
				Balance:   c.Balance,
				CreatedAt: c.CreatedAt,
				UpdatedAt: c.UpdatedAt,
			})
		}
		if err := db.Create(&rows).Error; err != nil {
			return err
		}
	}

	if len(state.Transactions) > 0 {
		rows := make([]models.TransactionProjection, 0, len(state.Transactions))
		for _, t := range state.Transactions {
			rows = append(rows, models.TransactionProjection{
				WalletID:        walletID,
				ID:              t.ID,
				ContactID:       t.ContactID,
				Kind:            string(t.Kind),
				Direction:       string(t.Direction),
				Amount:          t.Amount,
				Currency:        t.Currency,
				Description:     t.Description,
				TransactionDate: t.TransactionDate,
				DueDate:         t.DueDate,
				CreatedAt:       t.CreatedAt,
				UpdatedAt:       t.UpdatedAt,
			})
		}
		if err := db.Create(&rows).Error; err != nil {
			return err
		}
	}
	return nil
}
