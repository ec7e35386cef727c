package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is a shared ledger namespace. Every event, contact, and transaction
// belongs to exactly one wallet, and sync is always scoped to one wallet.
type Wallet struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	OwnerUserID uuid.UUID `gorm:"column:owner_user_id;type:uuid;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// WalletMember grants a user access to a wallet.
type WalletMember struct {
	WalletID  uuid.UUID `gorm:"column:wallet_id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Role      string    `gorm:"column:role;not null;default:member"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Wallet member roles.
const (
	WalletRoleOwner  = "owner"
	WalletRoleMember = "member"
)
