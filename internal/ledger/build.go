// Package ledger derives the materialized contact/transaction state from an
// event history. Build is a pure fold: the same event set always produces the
// same state, which is what lets independent replicas converge once they have
// exchanged events.
package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/debitumapp/debitum/internal/events"
)

// Contact is the materialized view of a contact aggregate.
type Contact struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Username  *string   `json:"username,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is the materialized view of a transaction aggregate.
type Transaction struct {
	ID              uuid.UUID        `json:"id"`
	ContactID       uuid.UUID        `json:"contact_id"`
	Kind            events.Kind      `json:"type"`
	Direction       events.Direction `json:"direction"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	Description     *string          `json:"description,omitempty"`
	TransactionDate string           `json:"transaction_date"`
	DueDate         *string          `json:"due_date,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// State is the full materialized projection for one wallet.
type State struct {
	Contacts     []Contact     `json:"contacts"`
	Transactions []Transaction `json:"transactions"`
}

// DefaultCurrency applies when a transaction payload omits the currency code.
const DefaultCurrency = "IQD"

// Build folds the event list into materialized state. Events are sorted by
// (timestamp, version, id) first, so callers may pass them in any order.
// UNDO retractions and their targets are excluded from the fold, an aggregate
// is terminal once its DELETED event folds, and a contact deletion cascades
// to its transactions. Balances are recomputed from surviving transactions
// at the end.
func Build(list []events.Event) State {
	sorted := events.SortEvents(list)

	undone := make(map[uuid.UUID]struct{})
	for _, e := range sorted {
		if e.EventType != events.TypeUndo {
			continue
		}
		payload, err := e.DecodeUndoPayload()
		if err != nil {
			continue
		}
		if target, err := uuid.Parse(payload.UndoneEventID); err == nil {
			undone[target] = struct{}{}
		}
	}

	contacts := make(map[uuid.UUID]*Contact)
	transactions := make(map[uuid.UUID]*Transaction)
	deletedContacts := make(map[uuid.UUID]struct{})
	deletedTransactions := make(map[uuid.UUID]struct{})

	for _, e := range sorted {
		if e.EventType == events.TypeUndo {
			continue
		}
		if _, isUndone := undone[e.ID]; isUndone {
			continue
		}
		switch e.AggregateType {
		case events.AggregateContact:
			applyContactEvent(contacts, transactions, deletedContacts, e)
		case events.AggregateTransaction:
			applyTransactionEvent(contacts, transactions, deletedTransactions, e)
		}
	}

	recalculateBalances(contacts, transactions)

	return State{
		Contacts:     sortedContacts(contacts),
		Transactions: sortedTransactions(transactions),
	}
}

func applyContactEvent(
	contacts map[uuid.UUID]*Contact,
	transactions map[uuid.UUID]*Transaction,
	deleted map[uuid.UUID]struct{},
	e events.Event,
) {
	switch e.EventType {
	case events.TypeCreated:
		if _, gone := deleted[e.AggregateID]; gone {
			return
		}
		payload, err := e.DecodeContactPayload()
		if err != nil {
			return
		}
		ts := payloadTime(payload.Timestamp, e.Timestamp)
		contact := &Contact{
			ID:        e.AggregateID,
			Username:  payload.Username,
			Phone:     payload.Phone,
			Email:     payload.Email,
			Notes:     payload.Notes,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		if payload.Name != nil {
			contact.Name = *payload.Name
		}
		contacts[e.AggregateID] = contact

	case events.TypeUpdated:
		existing, ok := contacts[e.AggregateID]
		if !ok {
			return
		}
		payload, err := e.DecodeContactPayload()
		if err != nil {
			return
		}
		if payload.Name != nil {
			existing.Name = *payload.Name
		}
		if payload.Username != nil {
			existing.Username = payload.Username
		}
		if payload.Phone != nil {
			existing.Phone = payload.Phone
		}
		if payload.Email != nil {
			existing.Email = payload.Email
		}
		if payload.Notes != nil {
			existing.Notes = payload.Notes
		}
		existing.UpdatedAt = payloadTime(payload.Timestamp, e.Timestamp)

	case events.TypeDeleted:
		deleted[e.AggregateID] = struct{}{}
		delete(contacts, e.AggregateID)
		for id, txn := range transactions {
			if txn.ContactID == e.AggregateID {
				delete(transactions, id)
			}
		}
	}
}

func applyTransactionEvent(
	contacts map[uuid.UUID]*Contact,
	transactions map[uuid.UUID]*Transaction,
	deleted map[uuid.UUID]struct{},
	e events.Event,
) {
	switch e.EventType {
	case events.TypeCreated:
		if _, gone := deleted[e.AggregateID]; gone {
			return
		}
		payload, err := e.DecodeTransactionPayload()
		if err != nil {
			return
		}
		if payload.ContactID == nil {
			return
		}
		contactID, err := uuid.Parse(*payload.ContactID)
		if err != nil {
			return
		}
		// A transaction only materializes when its contact exists at this
		// point of the fold; otherwise the contact was deleted (or never
		// created) and the transaction is dropped with it.
		if _, ok := contacts[contactID]; !ok {
			return
		}
		ts := payloadTime(payload.Timestamp, e.Timestamp)
		txn := &Transaction{
			ID:              e.AggregateID,
			ContactID:       contactID,
			Kind:            events.KindMoney,
			Direction:       events.DirectionOwed,
			Currency:        DefaultCurrency,
			Description:     payload.Description,
			TransactionDate: ts.Format("2006-01-02"),
			DueDate:         payload.DueDate,
			CreatedAt:       ts,
			UpdatedAt:       ts,
		}
		if payload.Kind != nil && events.Kind(*payload.Kind).IsValid() {
			txn.Kind = events.Kind(*payload.Kind)
		}
		if payload.Direction != nil && events.Direction(*payload.Direction).IsValid() {
			txn.Direction = events.Direction(*payload.Direction)
		}
		if payload.Amount != nil {
			txn.Amount = *payload.Amount
		}
		if payload.Currency != nil && *payload.Currency != "" {
			txn.Currency = *payload.Currency
		}
		if payload.TransactionDate != nil {
			txn.TransactionDate = *payload.TransactionDate
		}
		transactions[e.AggregateID] = txn

	case events.TypeUpdated:
		existing, ok := transactions[e.AggregateID]
		if !ok {
			return
		}
		payload, err := e.DecodeTransactionPayload()
		if err != nil {
			return
		}
		if payload.ContactID != nil {
			if contactID, err := uuid.Parse(*payload.ContactID); err == nil {
				existing.ContactID = contactID
			}
		}
		if payload.Kind != nil && events.Kind(*payload.Kind).IsValid() {
			existing.Kind = events.Kind(*payload.Kind)
		}
		if payload.Direction != nil && events.Direction(*payload.Direction).IsValid() {
			existing.Direction = events.Direction(*payload.Direction)
		}
		if payload.Amount != nil {
			existing.Amount = *payload.Amount
		}
		if payload.Currency != nil && *payload.Currency != "" {
			existing.Currency = *payload.Currency
		}
		if payload.Description != nil {
			existing.Description = payload.Description
		}
		if payload.TransactionDate != nil {
			existing.TransactionDate = *payload.TransactionDate
		}
		if payload.DueDate != nil {
			existing.DueDate = payload.DueDate
		}
		existing.UpdatedAt = payloadTime(payload.Timestamp, e.Timestamp)

	case events.TypeDeleted:
		deleted[e.AggregateID] = struct{}{}
		delete(transactions, e.AggregateID)
	}
}

func recalculateBalances(contacts map[uuid.UUID]*Contact, transactions map[uuid.UUID]*Transaction) {
	for _, c := range contacts {
		c.Balance = 0
	}
	for _, txn := range transactions {
		if c, ok := contacts[txn.ContactID]; ok {
			c.Balance += events.SignedAmount(txn.Direction, txn.Amount)
		}
	}
}

func payloadTime(raw *string, fallback time.Time) time.Time {
	if raw != nil {
		if ts, err := time.Parse(time.RFC3339, *raw); err == nil {
			return ts.UTC()
		}
	}
	return fallback.UTC()
}

func sortedContacts(contacts map[uuid.UUID]*Contact) []Contact {
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func sortedTransactions(transactions map[uuid.UUID]*Transaction) []Transaction {
	out := make([]Transaction, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
