package ledger_test

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/internal/ledger"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func strptr(s string) *string { return &s }

func int64ptr(v int64) *int64 { return &v }

func makeEvent(t *testing.T, aggType events.AggregateType, aggID uuid.UUID, evType events.EventType, ts time.Time, payload any) events.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{
		ID:            uuid.New(),
		AggregateType: aggType,
		AggregateID:   aggID,
		EventType:     evType,
		EventData:     data,
		Timestamp:     ts,
		Version:       1,
	}
}

func contactCreated(t *testing.T, id uuid.UUID, name string, ts time.Time) events.Event {
	t.Helper()
	return makeEvent(t, events.AggregateContact, id, events.TypeCreated, ts, events.ContactPayload{Name: strptr(name)})
}

func transactionCreated(t *testing.T, id, contactID uuid.UUID, direction string, amount int64, ts time.Time) events.Event {
	t.Helper()
	return makeEvent(t, events.AggregateTransaction, id, events.TypeCreated, ts, events.TransactionPayload{
		ContactID: strptr(contactID.String()),
		Direction: strptr(direction),
		Amount:    int64ptr(amount),
		Kind:      strptr(string(events.KindMoney)),
	})
}

func undoOf(t *testing.T, target events.Event, ts time.Time) events.Event {
	t.Helper()
	return makeEvent(t, target.AggregateType, target.AggregateID, events.TypeUndo, ts, events.UndoPayload{
		UndoneEventID: target.ID.String(),
	})
}

func TestBuildEmpty(t *testing.T) {
	state := ledger.Build(nil)
	assert.Empty(t, state.Contacts)
	assert.Empty(t, state.Transactions)
}

func TestBuildContactLifecycle(t *testing.T) {
	contactID := uuid.New()
	created := contactCreated(t, contactID, "Hassan", baseTime)
	updated := makeEvent(t, events.AggregateContact, contactID, events.TypeUpdated, baseTime.Add(time.Minute), events.ContactPayload{
		Phone: strptr("+964-770-000-0000"),
	})

	state := ledger.Build([]events.Event{created, updated})
	require.Len(t, state.Contacts, 1)
	got := state.Contacts[0]
	assert.Equal(t, contactID, got.ID)
	assert.Equal(t, "Hassan", got.Name, "update without a name keeps the prior one")
	require.NotNil(t, got.Phone)
	assert.Equal(t, "+964-770-000-0000", *got.Phone)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestBuildBalanceRecalculation(t *testing.T) {
	contactID := uuid.New()
	list := []events.Event{
		contactCreated(t, contactID, "Zainab", baseTime),
		transactionCreated(t, uuid.New(), contactID, string(events.DirectionLent), 50_000, baseTime.Add(time.Minute)),
		transactionCreated(t, uuid.New(), contactID, string(events.DirectionOwed), 20_000, baseTime.Add(2*time.Minute)),
	}

	state := ledger.Build(list)
	require.Len(t, state.Contacts, 1)
	assert.Equal(t, int64(30_000), state.Contacts[0].Balance)
	assert.Len(t, state.Transactions, 2)
}

func TestBuildUpdateAdjustsBalance(t *testing.T) {
	contactID := uuid.New()
	txnID := uuid.New()
	list := []events.Event{
		contactCreated(t, contactID, "Omar", baseTime),
		transactionCreated(t, txnID, contactID, string(events.DirectionLent), 10_000, baseTime.Add(time.Minute)),
		makeEvent(t, events.AggregateTransaction, txnID, events.TypeUpdated, baseTime.Add(2*time.Minute), events.TransactionPayload{
			Amount: int64ptr(25_000),
		}),
	}

	state := ledger.Build(list)
	require.Len(t, state.Transactions, 1)
	assert.Equal(t, int64(25_000), state.Transactions[0].Amount)
	assert.Equal(t, int64(25_000), state.Contacts[0].Balance)
}

func TestBuildContactDeleteCascades(t *testing.T) {
	keepID := uuid.New()
	dropID := uuid.New()
	list := []events.Event{
		contactCreated(t, keepID, "Keep", baseTime),
		contactCreated(t, dropID, "Drop", baseTime.Add(time.Second)),
		transactionCreated(t, uuid.New(), keepID, string(events.DirectionLent), 1_000, baseTime.Add(time.Minute)),
		transactionCreated(t, uuid.New(), dropID, string(events.DirectionLent), 2_000, baseTime.Add(time.Minute)),
		makeEvent(t, events.AggregateContact, dropID, events.TypeDeleted, baseTime.Add(2*time.Minute), nil),
	}

	state := ledger.Build(list)
	require.Len(t, state.Contacts, 1)
	assert.Equal(t, keepID, state.Contacts[0].ID)
	require.Len(t, state.Transactions, 1)
	assert.Equal(t, keepID, state.Transactions[0].ContactID)
}

func TestBuildDeleteWinsRegardlessOfOrder(t *testing.T) {
	contactID := uuid.New()
	created := contactCreated(t, contactID, "Layla", baseTime)
	deleted := makeEvent(t, events.AggregateContact, contactID, events.TypeDeleted, baseTime.Add(time.Minute), nil)
	// An update stamped after the delete still loses: the tombstone is terminal.
	lateUpdate := makeEvent(t, events.AggregateContact, contactID, events.TypeUpdated, baseTime.Add(2*time.Minute), events.ContactPayload{
		Name: strptr("Layla M"),
	})
	// A create stamped after the delete does not resurrect the aggregate.
	lateCreate := makeEvent(t, events.AggregateContact, contactID, events.TypeCreated, baseTime.Add(3*time.Minute), events.ContactPayload{
		Name: strptr("Layla again"),
	})

	for _, order := range [][]events.Event{
		{created, deleted, lateUpdate, lateCreate},
		{lateCreate, lateUpdate, deleted, created},
	} {
		state := ledger.Build(order)
		assert.Empty(t, state.Contacts)
	}
}

func TestBuildTransactionWithoutContactDropped(t *testing.T) {
	state := ledger.Build([]events.Event{
		transactionCreated(t, uuid.New(), uuid.New(), string(events.DirectionLent), 5_000, baseTime),
	})
	assert.Empty(t, state.Transactions)
}

func TestBuildUndoRetractsTarget(t *testing.T) {
	contactID := uuid.New()
	created := contactCreated(t, contactID, "Noor", baseTime)
	txn := transactionCreated(t, uuid.New(), contactID, string(events.DirectionLent), 7_500, baseTime.Add(time.Minute))
	undo := undoOf(t, txn, baseTime.Add(2*time.Minute))

	state := ledger.Build([]events.Event{created, txn, undo})
	assert.Empty(t, state.Transactions)
	require.Len(t, state.Contacts, 1)
	assert.Zero(t, state.Contacts[0].Balance)
}

func TestBuildUndoOfDeleteRestoresAggregate(t *testing.T) {
	contactID := uuid.New()
	created := contactCreated(t, contactID, "Sami", baseTime)
	deleted := makeEvent(t, events.AggregateContact, contactID, events.TypeDeleted, baseTime.Add(time.Minute), nil)
	undo := undoOf(t, deleted, baseTime.Add(time.Minute+2*time.Second))

	state := ledger.Build([]events.Event{created, deleted, undo})
	require.Len(t, state.Contacts, 1)
	assert.Equal(t, "Sami", state.Contacts[0].Name)
}

func TestBuildUndoAppliesBeforeItsOwnTimestamp(t *testing.T) {
	// The retraction set is collected before the fold, so an undo event
	// excludes its target even for events folded earlier in time order.
	contactID := uuid.New()
	created := contactCreated(t, contactID, "Rania", baseTime)
	undo := undoOf(t, created, baseTime.Add(time.Second))

	state := ledger.Build([]events.Event{undo, created})
	assert.Empty(t, state.Contacts)
}

func TestBuildConcurrentUpdatesLastWriteWins(t *testing.T) {
	contactID := uuid.New()
	created := contactCreated(t, contactID, "Base", baseTime)
	early := makeEvent(t, events.AggregateContact, contactID, events.TypeUpdated, baseTime.Add(time.Minute), events.ContactPayload{
		Name:  strptr("From replica A"),
		Notes: strptr("note A"),
	})
	late := makeEvent(t, events.AggregateContact, contactID, events.TypeUpdated, baseTime.Add(2*time.Minute), events.ContactPayload{
		Name: strptr("From replica B"),
	})

	state := ledger.Build([]events.Event{late, early, created})
	require.Len(t, state.Contacts, 1)
	assert.Equal(t, "From replica B", state.Contacts[0].Name)
	require.NotNil(t, state.Contacts[0].Notes, "field untouched by the later update survives")
	assert.Equal(t, "note A", *state.Contacts[0].Notes)
}

func TestBuildConvergenceUnderShuffle(t *testing.T) {
	var list []events.Event
	contactIDs := make([]uuid.UUID, 4)
	for i := range contactIDs {
		contactIDs[i] = uuid.New()
		list = append(list, contactCreated(t, contactIDs[i], fmt.Sprintf("contact-%d", i), baseTime.Add(time.Duration(i)*time.Second)))
	}
	for i := 0; i < 12; i++ {
		contactID := contactIDs[i%len(contactIDs)]
		direction := events.DirectionLent
		if i%3 == 0 {
			direction = events.DirectionOwed
		}
		txn := transactionCreated(t, uuid.New(), contactID, string(direction), int64(1000*(i+1)), baseTime.Add(time.Duration(10+i)*time.Second))
		list = append(list, txn)
		if i%4 == 0 {
			list = append(list, undoOf(t, txn, baseTime.Add(time.Duration(10+i)*time.Second+2*time.Second)))
		}
	}
	list = append(list, makeEvent(t, events.AggregateContact, contactIDs[2], events.TypeDeleted, baseTime.Add(time.Hour), nil))

	reference := ledger.Build(list)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		shuffled := make([]events.Event, len(list))
		copy(shuffled, list)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, reference, ledger.Build(shuffled), "trial %d", trial)
	}
}

func TestBuildIdempotent(t *testing.T) {
	contactID := uuid.New()
	list := []events.Event{
		contactCreated(t, contactID, "Idem", baseTime),
		transactionCreated(t, uuid.New(), contactID, string(events.DirectionLent), 3_000, baseTime.Add(time.Minute)),
	}
	first := ledger.Build(list)
	second := ledger.Build(list)
	assert.Equal(t, first, second)
}

func TestBuildDefaultsForSparseTransactionPayload(t *testing.T) {
	contactID := uuid.New()
	txnID := uuid.New()
	list := []events.Event{
		contactCreated(t, contactID, "Sparse", baseTime),
		makeEvent(t, events.AggregateTransaction, txnID, events.TypeCreated, baseTime.Add(time.Minute), events.TransactionPayload{
			ContactID: strptr(contactID.String()),
			Amount:    int64ptr(500),
		}),
	}

	state := ledger.Build(list)
	require.Len(t, state.Transactions, 1)
	txn := state.Transactions[0]
	assert.Equal(t, events.KindMoney, txn.Kind)
	assert.Equal(t, events.DirectionOwed, txn.Direction)
	assert.Equal(t, ledger.DefaultCurrency, txn.Currency)
	assert.Equal(t, baseTime.Add(time.Minute).Format("2006-01-02"), txn.TransactionDate)
}
