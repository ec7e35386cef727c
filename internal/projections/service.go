package projections

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/pkg/db/models"
	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
)

// Service exposes the wallet read models.
type Service interface {
	ListContacts(ctx context.Context, walletID uuid.UUID) ([]models.ContactProjection, error)
	GetContact(ctx context.Context, walletID, contactID uuid.UUID) (*models.ContactProjection, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, contactID *uuid.UUID) ([]models.TransactionProjection, error)
	Summary(ctx context.Context, walletID uuid.UUID) (*WalletSummary, error)
}

type reader interface {
	ListContacts(ctx context.Context, walletID uuid.UUID) ([]models.ContactProjection, error)
	GetContact(ctx context.Context, walletID, contactID uuid.UUID) (*models.ContactProjection, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID, contactID *uuid.UUID) ([]models.TransactionProjection, error)
}

// CurrencyTotals aggregates one currency's surviving transactions. Amounts
// are carried as decimal strings so clients do not have to re-implement
// minor-unit arithmetic.
type CurrencyTotals struct {
	Currency     string `json:"currency"`
	TotalLent    string `json:"total_lent"`
	TotalOwed    string `json:"total_owed"`
	Net          string `json:"net"`
	Transactions int    `json:"transactions"`
}

// WalletSummary is the admin roll-up for one wallet.
type WalletSummary struct {
	Contacts     int              `json:"contacts"`
	Transactions int              `json:"transactions"`
	Currencies   []CurrencyTotals `json:"currencies"`
}

type service struct {
	repo reader
}

// NewService wires the read-model service.
func NewService(repo reader) Service {
	return &service{repo: repo}
}

func (s *service) ListContacts(ctx context.Context, walletID uuid.UUID) ([]models.ContactProjection, error) {
	rows, err := s.repo.ListContacts(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing contacts")
	}
	return rows, nil
}

func (s *service) GetContact(ctx context.Context, walletID, contactID uuid.UUID) (*models.ContactProjection, error) {
	row, err := s.repo.GetContact(ctx, walletID, contactID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "loading contact")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
	}
	return row, nil
}

func (s *service) ListTransactions(ctx context.Context, walletID uuid.UUID, contactID *uuid.UUID) ([]models.TransactionProjection, error) {
	rows, err := s.repo.ListTransactions(ctx, walletID, contactID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing transactions")
	}
	return rows, nil
}

// Summary folds the wallet's surviving transactions into per-currency totals.
// Minor units are scaled to two decimal places through decimal arithmetic so
// the totals are exact regardless of magnitude.
func (s *service) Summary(ctx context.Context, walletID uuid.UUID) (*WalletSummary, error) {
	contacts, err := s.repo.ListContacts(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing contacts for summary")
	}
	transactions, err := s.repo.ListTransactions(ctx, walletID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing transactions for summary")
	}

	type bucket struct {
		lent  decimal.Decimal
		owed  decimal.Decimal
		count int
	}
	buckets := make(map[string]*bucket)
	var order []string
	for _, t := range transactions {
		b, ok := buckets[t.Currency]
		if !ok {
			b = &bucket{}
			buckets[t.Currency] = b
			order = append(order, t.Currency)
		}
		amount := decimal.New(t.Amount, -2)
		if t.Direction == string(events.DirectionLent) {
			b.lent = b.lent.Add(amount)
		} else {
			b.owed = b.owed.Add(amount)
		}
		b.count++
	}

	summary := &WalletSummary{
		Contacts:     len(contacts),
		Transactions: len(transactions),
		Currencies:   make([]CurrencyTotals, 0, len(order)),
	}
	for _, currency := range order {
		b := buckets[currency]
		summary.Currencies = append(summary.Currencies, CurrencyTotals{
			Currency:     currency,
			TotalLent:    b.lent.StringFixed(2),
			TotalOwed:    b.owed.StringFixed(2),
			Net:          b.lent.Sub(b.owed).StringFixed(2),
			Transactions: b.count,
		})
	}
	return summary, nil
}
