package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/internal/eventstore"
	"github.com/debitumapp/debitum/internal/replica/transport"
	"github.com/debitumapp/debitum/pkg/config"
	"github.com/debitumapp/debitum/pkg/logger"
)

type fakeStore struct {
	list        []events.Event
	synced      map[uuid.UUID]bool
	watermark   time.Time
	watermarkID uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{synced: map[uuid.UUID]bool{}}
}

func (f *fakeStore) ListAll(context.Context) ([]events.Event, error) {
	return append([]events.Event(nil), f.list...), nil
}

func (f *fakeStore) ListUnsynced(context.Context) ([]events.Event, error) {
	var out []events.Event
	for _, e := range f.list {
		if !f.synced[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkSynced(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		f.synced[id] = true
	}
	return nil
}

func (f *fakeStore) DeleteByEventIDs(_ context.Context, ids []uuid.UUID) error {
	drop := map[uuid.UUID]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.list[:0]
	for _, e := range f.list {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	f.list = kept
	return nil
}

func (f *fakeStore) AppendIfAbsent(_ context.Context, e events.Event, synced bool) (bool, error) {
	for _, existing := range f.list {
		if existing.ID == e.ID {
			return false, nil
		}
	}
	f.list = append(f.list, e)
	f.synced[e.ID] = synced
	return true, nil
}

func (f *fakeStore) ReplaceAll(_ context.Context, list []events.Event) error {
	f.list = append([]events.Event(nil), list...)
	f.synced = map[uuid.UUID]bool{}
	for _, e := range list {
		f.synced[e.ID] = true
	}
	return nil
}

func (f *fakeStore) CountEvents(context.Context) (int64, error) {
	return int64(len(f.list)), nil
}

func (f *fakeStore) Watermark(context.Context) (time.Time, uuid.UUID, error) {
	return f.watermark, f.watermarkID, nil
}

func (f *fakeStore) SetWatermark(_ context.Context, ts time.Time, lastID uuid.UUID) error {
	f.watermark = ts
	f.watermarkID = lastID
	return nil
}

func (f *fakeStore) add(e events.Event, synced bool) {
	f.list = append(f.list, e)
	f.synced[e.ID] = synced
}

type fakeServer struct {
	list       []events.Event
	rejectWith string
	netDown    bool
	pushCalls  int
}

var errConnRefused = errors.New("connection refused")

func (f *fakeServer) GetHash(context.Context) (eventstore.HashResult, error) {
	if f.netDown {
		return eventstore.HashResult{}, &transport.NetworkError{Op: "GET hash", Err: errConnRefused}
	}
	return eventstore.HashResult{
		Hash:  eventstore.HashEvents(f.list),
		Count: int64(len(f.list)),
	}, nil
}

func (f *fakeServer) EventsSince(_ context.Context, since time.Time, afterID uuid.UUID, limit int) ([]events.Event, error) {
	if f.netDown {
		return nil, &transport.NetworkError{Op: "GET events", Err: errConnRefused}
	}
	sorted := append([]events.Event(nil), f.list...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	var out []events.Event
	for _, e := range sorted {
		if !since.IsZero() {
			if e.Timestamp.Before(since) {
				continue
			}
			if e.Timestamp.Equal(since) && (afterID == uuid.Nil || e.ID.String() <= afterID.String()) {
				continue
			}
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeServer) PushEvents(_ context.Context, batch []events.Event) (eventstore.AcceptResult, error) {
	f.pushCalls++
	if f.netDown {
		return eventstore.AcceptResult{}, &transport.NetworkError{Op: "POST events", Err: errConnRefused}
	}
	result := eventstore.AcceptResult{AcceptedIDs: []string{}, Rejected: []eventstore.RejectedEvent{}}
	for _, e := range batch {
		if f.rejectWith != "" {
			result.Rejected = append(result.Rejected, eventstore.RejectedEvent{
				EventID: e.ID.String(),
				Reason:  f.rejectWith,
			})
			continue
		}
		f.list = append(f.list, e)
		result.Accepted++
		result.AcceptedIDs = append(result.AcceptedIDs, e.ID.String())
	}
	return result, nil
}

func testEngine(store *fakeStore, server *fakeServer) *Engine {
	cfg := config.ReplicaConfig{
		SyncInterval:      time.Minute,
		BackoffBase:       time.Millisecond,
		BackoffCap:        5 * time.Millisecond,
		BackoffMaxRetries: 2,
		ReachabilityTTL:   time.Hour,
		PullPageSize:      2,
	}
	return NewEngine(store, server, cfg, logger.New(logger.Options{ServiceName: "test"}))
}

func makeEvent(ts time.Time) events.Event {
	return events.Event{
		ID:            uuid.New(),
		AggregateType: events.AggregateContact,
		AggregateID:   uuid.New(),
		EventType:     events.TypeCreated,
		EventData:     json.RawMessage(`{"name":"Ahmed"}`),
		Timestamp:     ts,
		Version:       1,
	}
}

func TestSyncPushesUnsyncedEvents(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{}
	now := time.Now().UTC()

	local := makeEvent(now)
	store.add(local, false)

	en := testEngine(store, server)
	require.NoError(t, en.Sync(context.Background()))

	assert.True(t, store.synced[local.ID])
	require.Len(t, server.list, 1)
	assert.Equal(t, local.ID, server.list[0].ID)
}

func TestSyncPullsServerEventsIntoEmptyReplica(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{}
	now := time.Now().UTC().Truncate(time.Millisecond)

	server.list = []events.Event{makeEvent(now), makeEvent(now.Add(time.Second)), makeEvent(now.Add(2 * time.Second))}

	en := testEngine(store, server)
	require.NoError(t, en.Sync(context.Background()))

	all, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.True(t, store.watermark.Equal(now.Add(2*time.Second)))
}

func TestSyncConvergesBothDirections(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{}
	now := time.Now().UTC().Truncate(time.Millisecond)

	shared := makeEvent(now)
	store.add(shared, true)
	server.list = []events.Event{shared, makeEvent(now.Add(time.Second))}
	local := makeEvent(now.Add(2 * time.Second))
	store.add(local, false)

	en := testEngine(store, server)
	require.NoError(t, en.Sync(context.Background()))

	localAll, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, eventstore.HashEvents(server.list), eventstore.HashEvents(localAll))
	assert.Len(t, localAll, 3)
}

func TestSyncNoopWhenAlreadyConverged(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{}
	now := time.Now().UTC()

	shared := makeEvent(now)
	store.add(shared, true)
	server.list = []events.Event{shared}

	en := testEngine(store, server)
	require.NoError(t, en.Sync(context.Background()))

	assert.Equal(t, 0, server.pushCalls)
}

func TestSyncDropsPermanentlyRejectedEvents(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{rejectWith: "invalid_event_type"}
	now := time.Now().UTC()

	bad := makeEvent(now)
	store.add(bad, false)

	en := testEngine(store, server)
	require.NoError(t, en.Sync(context.Background()))

	count, err := store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSyncKeepsEventsQueuedWhenServerUnreachable(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{netDown: true}
	now := time.Now().UTC()

	local := makeEvent(now)
	store.add(local, false)

	en := testEngine(store, server)
	err := en.Sync(context.Background())
	require.Error(t, err)

	var netErr *transport.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.False(t, store.synced[local.ID])
	assert.Equal(t, int64(1), en.Status().Pending)
}

func TestSyncOfflineIsNoop(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{}
	store.add(makeEvent(time.Now().UTC()), false)

	en := testEngine(store, server)
	en.SetOnline(false)

	err := en.Sync(context.Background())
	require.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, 0, server.pushCalls)
	assert.Equal(t, StatusOffline, en.Status().Status)
}

func TestStatusReflectsLastError(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{netDown: true}

	en := testEngine(store, server)
	_ = en.Sync(context.Background())

	snap := en.Status()
	assert.Contains(t, snap.LastError, "server unreachable")
	assert.False(t, snap.Reachable)
}

func TestReachabilityRecoversAfterServerReturns(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{netDown: true}

	en := testEngine(store, server)
	_ = en.Sync(context.Background())
	assert.False(t, en.Status().Reachable)

	server.netDown = false
	require.NoError(t, en.Sync(context.Background()))
	assert.True(t, en.Status().Reachable)
}

func TestIncrementalPullPages(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{}
	now := time.Now().UTC().Truncate(time.Millisecond)

	shared := makeEvent(now)
	store.add(shared, true)
	for i := 1; i <= 5; i++ {
		server.list = append(server.list, makeEvent(now.Add(time.Duration(i)*time.Second)))
	}
	server.list = append(server.list, shared)

	en := testEngine(store, server)
	require.NoError(t, en.Sync(context.Background()))

	count, err := store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)
}

func TestFullPullCrossesTimestampTieAtPageBoundary(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{}
	now := time.Now().UTC().Truncate(time.Millisecond)

	// Three events share one timestamp while the page size is two, so the
	// page boundary falls inside the tie group.
	server.list = []events.Event{makeEvent(now), makeEvent(now), makeEvent(now)}

	en := testEngine(store, server)
	require.NoError(t, en.Sync(context.Background()))

	localAll, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, localAll, 3)
	assert.Equal(t, eventstore.HashEvents(server.list), eventstore.HashEvents(localAll))
}

func TestIncrementalPullCrossesTimestampTieAtPageBoundary(t *testing.T) {
	store := newFakeStore()
	server := &fakeServer{}
	now := time.Now().UTC().Truncate(time.Millisecond)

	shared := makeEvent(now)
	store.add(shared, true)
	server.list = []events.Event{shared}
	tied := now.Add(time.Second)
	for i := 0; i < 3; i++ {
		server.list = append(server.list, makeEvent(tied))
	}

	en := testEngine(store, server)
	require.NoError(t, en.Sync(context.Background()))

	localAll, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, localAll, 4)
	assert.Equal(t, eventstore.HashEvents(server.list), eventstore.HashEvents(localAll))
	assert.True(t, store.watermark.Equal(tied))
}
