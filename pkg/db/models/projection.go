package models

import (
	"time"

	"github.com/google/uuid"
)

// ContactProjection is the server-side materialized row for one contact.
// Projection rows are derived entirely from the event log and can be rebuilt
// at any time; they exist so that read endpoints do not refold the log.
type ContactProjection struct {
	WalletID  uuid.UUID `gorm:"column:wallet_id;type:uuid;primaryKey"`
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Username  *string   `gorm:"column:username"`
	Phone     *string   `gorm:"column:phone"`
	Email     *string   `gorm:"column:email"`
	Notes     *string   `gorm:"column:notes"`
	Balance   int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName matches the migration.
func (ContactProjection) TableName() string { return "contacts_projection" }

// TransactionProjection is the server-side materialized row for one
// transaction.
type TransactionProjection struct {
	WalletID        uuid.UUID `gorm:"column:wallet_id;type:uuid;primaryKey"`
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ContactID       uuid.UUID `gorm:"column:contact_id;type:uuid;not null"`
	Kind            string    `gorm:"column:kind;not null"`
	Direction       string    `gorm:"column:direction;not null"`
	Amount          int64     `gorm:"column:amount;not null"`
	Currency        string    `gorm:"column:currency;not null"`
	Description     *string   `gorm:"column:description"`
	TransactionDate string    `gorm:"column:transaction_date;not null"`
	DueDate         *string   `gorm:"column:due_date"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

// TableName matches the migration.
func (TransactionProjection) TableName() string { return "transactions_projection" }
