package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Rejection explains why a single event was refused at the boundary.
type Rejection struct {
	Reason string
	Label  string
}

func (r *Rejection) Error() string {
	return r.Reason
}

func reject(label, format string, args ...any) *Rejection {
	return &Rejection{Reason: fmt.Sprintf(format, args...), Label: label}
}

// Validate checks an event envelope and its payload against the schema for
// its (aggregate_type, event_type) combination. A nil return means the event
// is acceptable; a *Rejection carries the per-event reason surfaced to the
// client.
func Validate(e Event) *Rejection {
	if e.ID == uuid.Nil {
		return reject("missing_id", "event id is required")
	}
	if !e.EventType.IsValid() {
		return reject("invalid_event_type", "invalid event_type %q: allowed values are CREATED, UPDATED, DELETED, UNDO", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return reject("invalid_aggregate_type", "invalid aggregate_type %q: allowed values are contact, transaction", e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return reject("invalid_aggregate_id", "aggregate_id must be a well-formed UUID")
	}
	if e.Timestamp.IsZero() {
		return reject("missing_timestamp", "timestamp is required")
	}

	switch e.EventType {
	case TypeUndo:
		return validateUndo(e)
	case TypeCreated, TypeUpdated:
		switch e.AggregateType {
		case AggregateContact:
			return validateContact(e)
		case AggregateTransaction:
			return validateTransaction(e)
		}
	case TypeDeleted:
		// No payload requirements; may carry a comment.
	}
	return nil
}

func validateUndo(e Event) *Rejection {
	payload, err := e.DecodeUndoPayload()
	if err != nil {
		return reject("malformed_payload", "event_data is not a valid UNDO payload: %v", err)
	}
	if payload.UndoneEventID == "" {
		return reject("missing_undone_event_id", "UNDO events must carry 'undone_event_id'")
	}
	if _, err := uuid.Parse(payload.UndoneEventID); err != nil {
		return reject("invalid_undone_event_id", "UNDO 'undone_event_id' must be a valid UUID")
	}
	// The window check against the target's creation time needs store access
	// and happens in the event store service.
	return nil
}

func validateContact(e Event) *Rejection {
	payload, err := e.DecodeContactPayload()
	if err != nil {
		return reject("malformed_payload", "event_data is not a valid contact payload: %v", err)
	}
	if e.EventType == TypeCreated {
		if payload.Name == nil || *payload.Name == "" {
			return reject("missing_name", "CREATED contact events must carry 'name'")
		}
	}
	return nil
}

func validateTransaction(e Event) *Rejection {
	payload, err := e.DecodeTransactionPayload()
	if err != nil {
		return reject("malformed_payload", "event_data is not a valid transaction payload: %v", err)
	}
	if payload.Direction != nil && !Direction(*payload.Direction).IsValid() {
		return reject("invalid_direction", "transaction 'direction' must be 'lent' or 'owed'")
	}
	if payload.Kind != nil && !Kind(*payload.Kind).IsValid() {
		return reject("invalid_kind", "transaction 'type' must be 'money' or 'item'")
	}
	if payload.TransactionDate != nil {
		if _, err := time.Parse("2006-01-02", *payload.TransactionDate); err != nil {
			return reject("invalid_transaction_date", "transaction_date must be YYYY-MM-DD")
		}
	}
	if e.EventType == TypeCreated {
		if payload.Amount == nil {
			return reject("missing_amount", "CREATED transaction events must carry 'amount'")
		}
		if payload.Direction == nil {
			return reject("missing_direction", "CREATED transaction events must carry 'direction'")
		}
		if payload.ContactID == nil || *payload.ContactID == "" {
			return reject("missing_contact_id", "CREATED transaction events must carry 'contact_id'")
		}
		if _, err := uuid.Parse(*payload.ContactID); err != nil {
			return reject("invalid_contact_id", "transaction 'contact_id' must be a valid UUID")
		}
	}
	return nil
}
