package events

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AggregateType identifies the entity family an event belongs to.
type AggregateType string

const (
	AggregateContact     AggregateType = "contact"
	AggregateTransaction AggregateType = "transaction"
)

func (a AggregateType) IsValid() bool {
	return a == AggregateContact || a == AggregateTransaction
}

// EventType is the lifecycle operation an event records. Undo is the bounded
// retraction: it points at an earlier event instead of carrying new state.
type EventType string

const (
	TypeCreated EventType = "CREATED"
	TypeUpdated EventType = "UPDATED"
	TypeDeleted EventType = "DELETED"
	TypeUndo    EventType = "UNDO"
)

func (e EventType) IsValid() bool {
	switch e {
	case TypeCreated, TypeUpdated, TypeDeleted, TypeUndo:
		return true
	}
	return false
}

// Direction signs a transaction's effect on the contact balance.
type Direction string

const (
	DirectionLent Direction = "lent"
	DirectionOwed Direction = "owed"
)

func (d Direction) IsValid() bool {
	return d == DirectionLent || d == DirectionOwed
}

// SignedAmount applies the direction to an amount: lent counts positive,
// owed negative.
func SignedAmount(d Direction, amount int64) int64 {
	if d == DirectionLent {
		return amount
	}
	return -amount
}

// Kind distinguishes money debts from item debts.
type Kind string

const (
	KindMoney Kind = "money"
	KindItem  Kind = "item"
)

func (k Kind) IsValid() bool {
	return k == KindMoney || k == KindItem
}

// UndoWindow bounds how long after an event its retraction is accepted.
const UndoWindow = 5 * time.Second

// Event is one immutable fact in the append-only log. The wire format is the
// JSON encoding of this struct; timestamps travel as UTC RFC 3339.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
}

// Less orders events for folding: timestamp first, then version, then id as a
// deterministic final tie-break so every replica folds an identical set in an
// identical order.
func (e Event) Less(other Event) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	if e.Version != other.Version {
		return e.Version < other.Version
	}
	return e.ID.String() < other.ID.String()
}

// ContactPayload is the tagged-union payload for contact CREATED/UPDATED
// events. On UPDATED, nil fields keep their previous value.
type ContactPayload struct {
	Name      *string `json:"name,omitempty"`
	Username  *string `json:"username,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
	WalletID  *string `json:"wallet_id,omitempty"`
}

// TransactionPayload is the payload for transaction CREATED/UPDATED events.
type TransactionPayload struct {
	ContactID       *string `json:"contact_id,omitempty"`
	Kind            *string `json:"type,omitempty"`
	Direction       *string `json:"direction,omitempty"`
	Amount          *int64  `json:"amount,omitempty"`
	Currency        *string `json:"currency,omitempty"`
	Description     *string `json:"description,omitempty"`
	TransactionDate *string `json:"transaction_date,omitempty"`
	DueDate         *string `json:"due_date,omitempty"`
	Timestamp       *string `json:"timestamp,omitempty"`
	WalletID        *string `json:"wallet_id,omitempty"`
}

// UndoPayload is the payload for UNDO retraction events.
type UndoPayload struct {
	UndoneEventID string  `json:"undone_event_id"`
	Comment       *string `json:"comment,omitempty"`
	Timestamp     *string `json:"timestamp,omitempty"`
	WalletID      *string `json:"wallet_id,omitempty"`
}

// DecodeContactPayload parses the event data as a contact payload.
func (e Event) DecodeContactPayload() (ContactPayload, error) {
	var p ContactPayload
	if len(e.EventData) == 0 {
		return p, nil
	}
	err := json.Unmarshal(e.EventData, &p)
	return p, err
}

// DecodeTransactionPayload parses the event data as a transaction payload.
func (e Event) DecodeTransactionPayload() (TransactionPayload, error) {
	var p TransactionPayload
	if len(e.EventData) == 0 {
		return p, nil
	}
	err := json.Unmarshal(e.EventData, &p)
	return p, err
}

// DecodeUndoPayload parses the event data as an undo payload.
func (e Event) DecodeUndoPayload() (UndoPayload, error) {
	var p UndoPayload
	if len(e.EventData) == 0 {
		return p, nil
	}
	err := json.Unmarshal(e.EventData, &p)
	return p, err
}

// SortEvents orders a copy of the slice by the fold order.
func SortEvents(list []Event) []Event {
	sorted := make([]Event, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Less(sorted[j])
	})
	return sorted
}
