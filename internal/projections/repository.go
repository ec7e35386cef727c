package projections

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/debitumapp/debitum/pkg/db/models"
)

// Repository reads projection rows for one wallet.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListContacts returns the wallet's contacts ordered by creation time.
func (r *Repository) ListContacts(ctx context.Context, walletID uuid.UUID) ([]models.ContactProjection, error) {
	var rows []models.ContactProjection
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// GetContact returns one contact, or nil when absent.
func (r *Repository) GetContact(ctx context.Context, walletID, contactID uuid.UUID) (*models.ContactProjection, error) {
	var row models.ContactProjection
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND id = ?", walletID, contactID).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListTransactions returns the wallet's transactions, optionally filtered by
// contact, ordered by creation time.
func (r *Repository) ListTransactions(ctx context.Context, walletID uuid.UUID, contactID *uuid.UUID) ([]models.TransactionProjection, error) {
	q := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at ASC, id ASC")
	if contactID != nil {
		q = q.Where("contact_id = ?", *contactID)
	}
	var rows []models.TransactionProjection
	err := q.Find(&rows).Error
	return rows, err
}
