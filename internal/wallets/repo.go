package wallets

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/debitumapp/debitum/pkg/db/models"
)

// Repository exposes wallet and membership persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a wallets repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateWithOwner inserts the wallet and the owner membership in one
// transaction.
func (r *Repository) CreateWithOwner(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(wallet).Error; err != nil {
			return err
		}
		member := models.WalletMember{
			WalletID: wallet.ID,
			UserID:   wallet.OwnerUserID,
			Role:     models.WalletRoleOwner,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// FindByID loads a wallet by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// ListForUser returns every wallet the user is a member of.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	var rows []models.Wallet
	err := r.db.WithContext(ctx).
		Joins("JOIN wallet_members wm ON wm.wallet_id = wallets.id").
		Where("wm.user_id = ?", userID).
		Order("wallets.created_at ASC").
		Find(&rows).Error
	return rows, err
}

// IsMember reports whether the user belongs to the wallet.
func (r *Repository) IsMember(ctx context.Context, walletID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletMember{}).
		Where("wallet_id = ? AND user_id = ?", walletID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddMember grants a user access to the wallet. Re-adding an existing
// member is a conflict surfaced by the composite primary key.
func (r *Repository) AddMember(ctx context.Context, member *models.WalletMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}
