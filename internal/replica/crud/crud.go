// Package crud is the replica's local edit surface. Every edit becomes an
// event appended to the local store as unsynced, and the in-memory ledger is
// rebuilt immediately so the caller sees the change without waiting for a
// sync round.
package crud

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/internal/ledger"
	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
)

type eventLog interface {
	Append(ctx context.Context, e events.Event, synced bool) error
	ListAll(ctx context.Context) ([]events.Event, error)
	ListForAggregate(ctx context.Context, aggregateType events.AggregateType, aggregateID uuid.UUID) ([]events.Event, error)
}

// ContactInput carries the fields of a contact edit. On update, nil fields
// keep their previous value.
type ContactInput struct {
	Name     *string
	Username *string
	Phone    *string
	Email    *string
	Notes    *string
}

// TransactionInput carries the fields of a transaction edit.
type TransactionInput struct {
	ContactID       *uuid.UUID
	Kind            *events.Kind
	Direction       *events.Direction
	Amount          *int64
	Currency        *string
	Description     *string
	TransactionDate *string
	DueDate         *string
}

// Editor records ledger edits against the local store.
type Editor struct {
	log eventLog
	now func() time.Time
}

// NewEditor wires an editor over the replica store.
func NewEditor(log eventLog) *Editor {
	return &Editor{log: log, now: time.Now}
}

// CreateContact appends a contact CREATED event and returns the new
// aggregate id.
func (ed *Editor) CreateContact(ctx context.Context, in ContactInput) (uuid.UUID, error) {
	if in.Name == nil || *in.Name == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "contact name is required")
	}
	id := uuid.New()
	e, err := ed.newEvent(events.AggregateContact, id, events.TypeCreated, contactPayload(in, ed.now()))
	if err != nil {
		return uuid.Nil, err
	}
	return id, ed.append(ctx, e)
}

// UpdateContact appends a contact UPDATED event for the given aggregate.
func (ed *Editor) UpdateContact(ctx context.Context, contactID uuid.UUID, in ContactInput) (events.Event, error) {
	e, err := ed.newEvent(events.AggregateContact, contactID, events.TypeUpdated, contactPayload(in, ed.now()))
	if err != nil {
		return events.Event{}, err
	}
	return e, ed.append(ctx, e)
}

// DeleteContact appends a contact DELETED event. The fold cascades the
// delete to the contact's transactions.
func (ed *Editor) DeleteContact(ctx context.Context, contactID uuid.UUID) (events.Event, error) {
	e, err := ed.newEvent(events.AggregateContact, contactID, events.TypeDeleted, emptyPayload(ed.now()))
	if err != nil {
		return events.Event{}, err
	}
	return e, ed.append(ctx, e)
}

// CreateTransaction appends a transaction CREATED event.
func (ed *Editor) CreateTransaction(ctx context.Context, in TransactionInput) (uuid.UUID, error) {
	if in.ContactID == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction contact is required")
	}
	if in.Amount == nil || *in.Amount <= 0 {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction amount must be positive")
	}
	id := uuid.New()
	e, err := ed.newEvent(events.AggregateTransaction, id, events.TypeCreated, transactionPayload(in, ed.now()))
	if err != nil {
		return uuid.Nil, err
	}
	return id, ed.append(ctx, e)
}

// UpdateTransaction appends a transaction UPDATED event.
func (ed *Editor) UpdateTransaction(ctx context.Context, transactionID uuid.UUID, in TransactionInput) (events.Event, error) {
	e, err := ed.newEvent(events.AggregateTransaction, transactionID, events.TypeUpdated, transactionPayload(in, ed.now()))
	if err != nil {
		return events.Event{}, err
	}
	return e, ed.append(ctx, e)
}

// DeleteTransaction removes a transaction. When the transaction's own CREATED
// event is still the last entry in its history and inside the undo window,
// the delete retracts the creation instead of recording a tombstone, keeping
// the log free of create/delete pairs from immediate corrections.
func (ed *Editor) DeleteTransaction(ctx context.Context, transactionID uuid.UUID) (events.Event, error) {
	latest, err := ed.latestFor(ctx, events.AggregateTransaction, transactionID)
	if err != nil {
		return events.Event{}, err
	}
	now := ed.now().UTC()
	if latest != nil &&
		latest.EventType == events.TypeCreated &&
		now.Sub(latest.Timestamp) <= events.UndoWindow {
		ts := now.Format(time.RFC3339Nano)
		payload := events.UndoPayload{UndoneEventID: latest.ID.String(), Timestamp: &ts}
		e, err := ed.newEvent(events.AggregateTransaction, transactionID, events.TypeUndo, payload)
		if err != nil {
			return events.Event{}, err
		}
		return e, ed.append(ctx, e)
	}

	e, err := ed.newEvent(events.AggregateTransaction, transactionID, events.TypeDeleted, emptyPayload(ed.now()))
	if err != nil {
		return events.Event{}, err
	}
	return e, ed.append(ctx, e)
}

// UndoContact retracts the most recent event in the contact's history,
// provided it happened within the undo window and is not itself a retraction.
func (ed *Editor) UndoContact(ctx context.Context, contactID uuid.UUID, comment *string) (events.Event, error) {
	return ed.undoLatest(ctx, events.AggregateContact, contactID, comment)
}

// UndoTransaction retracts the most recent event in the transaction's
// history under the same window rules.
func (ed *Editor) UndoTransaction(ctx context.Context, transactionID uuid.UUID, comment *string) (events.Event, error) {
	return ed.undoLatest(ctx, events.AggregateTransaction, transactionID, comment)
}

func (ed *Editor) undoLatest(ctx context.Context, agg events.AggregateType, aggID uuid.UUID, comment *string) (events.Event, error) {
	target, err := ed.latestFor(ctx, agg, aggID)
	if err != nil {
		return events.Event{}, err
	}
	if target == nil || target.EventType == events.TypeUndo {
		return events.Event{}, pkgerrors.New(pkgerrors.CodeNothingToUndo, "nothing to undo")
	}

	now := ed.now().UTC()
	if now.Sub(target.Timestamp) > events.UndoWindow {
		return events.Event{}, pkgerrors.New(pkgerrors.CodeNothingToUndo, "nothing to undo")
	}

	ts := now.Format(time.RFC3339Nano)
	payload := events.UndoPayload{
		UndoneEventID: target.ID.String(),
		Comment:       comment,
		Timestamp:     &ts,
	}
	e, err := ed.newEvent(agg, aggID, events.TypeUndo, payload)
	if err != nil {
		return events.Event{}, err
	}
	return e, ed.append(ctx, e)
}

// latestFor returns the newest event of one aggregate's history, or nil when
// it has none.
func (ed *Editor) latestFor(ctx context.Context, agg events.AggregateType, aggID uuid.UUID) (*events.Event, error) {
	history, err := ed.log.ListForAggregate(ctx, agg, aggID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "loading aggregate events")
	}
	if len(history) == 0 {
		return nil, nil
	}
	sorted := events.SortEvents(history)
	last := sorted[len(sorted)-1]
	return &last, nil
}

// State folds the full local log into the current ledger.
func (ed *Editor) State(ctx context.Context) (ledger.State, error) {
	list, err := ed.log.ListAll(ctx)
	if err != nil {
		return ledger.State{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "loading local events")
	}
	return ledger.Build(list), nil
}

func (ed *Editor) newEvent(agg events.AggregateType, aggID uuid.UUID, typ events.EventType, payload any) (events.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return events.Event{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding event payload")
	}
	return events.Event{
		ID:            uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     typ,
		EventData:     data,
		// The server's event_ts column holds microseconds. Creating at the
		// same precision keeps the local copy byte-equal to the stored one,
		// so the log digests can converge after a push.
		Timestamp: ed.now().UTC().Truncate(time.Microsecond),
		Version:   1,
	}, nil
}

func (ed *Editor) append(ctx context.Context, e events.Event) error {
	if rej := events.Validate(e); rej != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, rej.Label)
	}
	if err := ed.log.Append(ctx, e, false); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "appending event")
	}
	return nil
}

func contactPayload(in ContactInput, now time.Time) events.ContactPayload {
	ts := now.UTC().Format(time.RFC3339Nano)
	return events.ContactPayload{
		Name:      in.Name,
		Username:  in.Username,
		Phone:     in.Phone,
		Email:     in.Email,
		Notes:     in.Notes,
		Timestamp: &ts,
	}
}

func transactionPayload(in TransactionInput, now time.Time) events.TransactionPayload {
	ts := now.UTC().Format(time.RFC3339Nano)
	p := events.TransactionPayload{
		Amount:          in.Amount,
		Currency:        in.Currency,
		Description:     in.Description,
		TransactionDate: in.TransactionDate,
		DueDate:         in.DueDate,
		Timestamp:       &ts,
	}
	if in.ContactID != nil {
		s := in.ContactID.String()
		p.ContactID = &s
	}
	if in.Kind != nil {
		s := string(*in.Kind)
		p.Kind = &s
	}
	if in.Direction != nil {
		s := string(*in.Direction)
		p.Direction = &s
	}
	return p
}

func emptyPayload(now time.Time) map[string]string {
	return map[string]string{"timestamp": now.UTC().Format(time.RFC3339Nano)}
}
