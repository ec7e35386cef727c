// Package eventstore is the server side of the sync protocol: it accepts
// pushed events into the append-only log, streams events back to replicas,
// and exposes the log hash replicas use to detect divergence.
package eventstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/pkg/config"
	"github.com/debitumapp/debitum/pkg/db/models"
	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
	"github.com/debitumapp/debitum/pkg/metrics"
)

// Service exposes the wallet event log operations used by the sync endpoints.
type Service interface {
	AcceptEvents(ctx context.Context, walletID, userID uuid.UUID, batch []events.Event) (*AcceptResult, error)
	EventsSince(ctx context.Context, walletID uuid.UUID, since time.Time, afterID uuid.UUID, limit int) ([]events.Event, error)
	EventsForAggregate(ctx context.Context, walletID uuid.UUID, aggregateType events.AggregateType, aggregateID uuid.UUID) ([]events.Event, error)
	Hash(ctx context.Context, walletID uuid.UUID) (*HashResult, error)
}

// repository is the persistence surface AcceptEvents and the read paths use.
type repository interface {
	Exists(ctx context.Context, walletID, eventID uuid.UUID) (bool, error)
	FindByEventID(ctx context.Context, walletID, eventID uuid.UUID) (*models.EventRecord, error)
	ListSince(ctx context.Context, walletID uuid.UUID, since time.Time, afterID uuid.UUID, limit int) ([]models.EventRecord, error)
	ListAll(ctx context.Context, walletID uuid.UUID) ([]models.EventRecord, error)
	ListForAggregate(ctx context.Context, walletID uuid.UUID, aggregateType string, aggregateID uuid.UUID) ([]models.EventRecord, error)
	StoreBatch(ctx context.Context, records []models.EventRecord, after func(tx *gorm.DB) error) error
}

// projectionRebuilder refreshes read models after the log changes.
type projectionRebuilder interface {
	Rebuild(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) error
}

// notifier announces accepted events to connected replicas.
type notifier interface {
	EventsAccepted(ctx context.Context, walletID uuid.UUID, count int)
}

// RejectedEvent reports one event that did not make it into the log.
type RejectedEvent struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// AcceptResult summarizes one push batch. Accepted counts newly stored
// events; duplicates are acknowledged in AcceptedIDs without being recounted.
type AcceptResult struct {
	Accepted    int             `json:"accepted"`
	AcceptedIDs []string        `json:"accepted_ids"`
	Rejected    []RejectedEvent `json:"rejected"`
}

// HashResult carries the wallet's log digest and size.
type HashResult struct {
	Hash  string `json:"hash"`
	Count int64  `json:"count"`
}

type service struct {
	repo    repository
	rebuild projectionRebuilder
	notify  notifier
	cfg     config.SyncConfig
	metrics *metrics.SyncMetrics
}

// NewService wires the event store service. rebuild and notify may be nil;
// metrics may be nil in tests.
func NewService(repo repository, rebuild projectionRebuilder, notify notifier, cfg config.SyncConfig, m *metrics.SyncMetrics) Service {
	return &service{
		repo:    repo,
		rebuild: rebuild,
		notify:  notify,
		cfg:     cfg,
		metrics: m,
	}
}

// AcceptEvents validates and stores a pushed batch. Validation is per event:
// invalid events are rejected individually and the valid remainder is stored
// in one transaction, so a replica never has a whole push bounced by one bad
// event. Events already in the log are acknowledged without being restored.
func (s *service) AcceptEvents(ctx context.Context, walletID, userID uuid.UUID, batch []events.Event) (*AcceptResult, error) {
	if len(batch) == 0 {
		return &AcceptResult{AcceptedIDs: []string{}, Rejected: []RejectedEvent{}}, nil
	}
	if s.cfg.MaxBatchSize > 0 && len(batch) > s.cfg.MaxBatchSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sync batch exceeds maximum size").
			WithDetails(map[string]int{"max_batch_size": s.cfg.MaxBatchSize, "received": len(batch)})
	}

	result := &AcceptResult{AcceptedIDs: []string{}, Rejected: []RejectedEvent{}}
	var toStore []models.EventRecord
	seen := make(map[uuid.UUID]struct{}, len(batch))

	for _, e := range batch {
		if rej := events.Validate(e); rej != nil {
			s.reject(result, e, rej.Label)
			continue
		}
		if _, dup := seen[e.ID]; dup {
			// Same event twice in one batch: the first copy wins.
			result.AcceptedIDs = append(result.AcceptedIDs, e.ID.String())
			continue
		}
		seen[e.ID] = struct{}{}

		exists, err := s.repo.Exists(ctx, walletID, e.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "checking event existence")
		}
		if exists {
			result.AcceptedIDs = append(result.AcceptedIDs, e.ID.String())
			continue
		}

		if e.EventType == events.TypeUndo {
			if reason := s.checkUndo(ctx, walletID, e, batch); reason != "" {
				s.reject(result, e, reason)
				continue
			}
		}

		toStore = append(toStore, models.EventRecord{
			EventID:       e.ID,
			WalletID:      walletID,
			UserID:        userID,
			AggregateType: string(e.AggregateType),
			AggregateID:   e.AggregateID,
			EventType:     string(e.EventType),
			EventData:     e.EventData,
			// event_ts is TIMESTAMPTZ, which holds microseconds. Truncate
			// before storing so the digest over stored rows matches a digest
			// over the wire-format copies of the same events.
			EventTS: e.Timestamp.UTC().Truncate(time.Microsecond),
			Version: e.Version,
		})
	}

	if len(toStore) > 0 {
		var after func(tx *gorm.DB) error
		if s.rebuild != nil {
			after = func(tx *gorm.DB) error {
				return s.rebuild.Rebuild(ctx, tx, walletID)
			}
		}
		if err := s.repo.StoreBatch(ctx, toStore, after); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "storing sync batch")
		}
		for _, record := range toStore {
			result.Accepted++
			result.AcceptedIDs = append(result.AcceptedIDs, record.EventID.String())
			s.metrics.IncAccepted(record.AggregateType)
		}
	}

	if s.notify != nil && result.Accepted > 0 {
		s.notify.EventsAccepted(ctx, walletID, result.Accepted)
	}
	return result, nil
}

func (s *service) reject(result *AcceptResult, e events.Event, reason string) {
	id := ""
	if e.ID != uuid.Nil {
		id = e.ID.String()
	}
	result.Rejected = append(result.Rejected, RejectedEvent{EventID: id, Reason: reason})
	s.metrics.IncRejected(reason)
}

// checkUndo enforces the retraction window. The undo must name a stored
// event (or one earlier in the same batch), and the gap between the target's
// timestamp and the undo's timestamp must stay inside the window. The undo's
// own timestamp is what is measured, not arrival time, so a replica that was
// briefly offline can still sync an undo it recorded in time.
func (s *service) checkUndo(ctx context.Context, walletID uuid.UUID, e events.Event, batch []events.Event) string {
	payload, err := e.DecodeUndoPayload()
	if err != nil {
		return "malformed_payload"
	}
	targetID, err := uuid.Parse(payload.UndoneEventID)
	if err != nil {
		return "invalid_undone_event_id"
	}

	var targetTS time.Time
	record, err := s.repo.FindByEventID(ctx, walletID, targetID)
	if err != nil {
		return "storage_error"
	}
	if record != nil {
		targetTS = record.EventTS
	} else {
		found := false
		for _, other := range batch {
			if other.ID == targetID {
				targetTS = other.Timestamp
				found = true
				break
			}
		}
		if !found {
			return "undo_target_not_found"
		}
	}

	window := s.cfg.UndoWindow
	if window <= 0 {
		window = events.UndoWindow
	}
	if e.Timestamp.Sub(targetTS) > window {
		return "undo_window_expired"
	}
	return ""
}

// EventsSince returns wallet events strictly after the (since, afterID)
// cursor, oldest first. afterID resumes pagination inside a run of equal
// timestamps; a zero cursor returns the full log from the start.
func (s *service) EventsSince(ctx context.Context, walletID uuid.UUID, since time.Time, afterID uuid.UUID, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = s.cfg.FetchPageSize
	}
	records, err := s.repo.ListSince(ctx, walletID, since, afterID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing wallet events")
	}
	out := make([]events.Event, 0, len(records))
	for _, record := range records {
		out = append(out, recordToEvent(record))
	}
	return out, nil
}

// EventsForAggregate returns one aggregate's event history, oldest first.
func (s *service) EventsForAggregate(ctx context.Context, walletID uuid.UUID, aggregateType events.AggregateType, aggregateID uuid.UUID) ([]events.Event, error) {
	if !aggregateType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid aggregate type")
	}
	records, err := s.repo.ListForAggregate(ctx, walletID, string(aggregateType), aggregateID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing aggregate events")
	}
	out := make([]events.Event, 0, len(records))
	for _, record := range records {
		out = append(out, recordToEvent(record))
	}
	return out, nil
}

// Hash digests the wallet's full log as SHA-256 over each event's id and
// timestamp in storage order. Two replicas with the same hash hold the same
// event set and need no pull.
func (s *service) Hash(ctx context.Context, walletID uuid.UUID) (*HashResult, error) {
	records, err := s.repo.ListAll(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing wallet events for hash")
	}
	s.metrics.IncHashCheck()
	return &HashResult{
		Hash:  HashRecords(records),
		Count: int64(len(records)),
	}, nil
}

// HashRecords computes the log digest for loaded event rows. Rows are
// re-sorted by (timestamp, version, event id) before hashing, the same order
// HashEvents uses, so the digest is storage-order independent.
func HashRecords(records []models.EventRecord) string {
	sorted := make([]models.EventRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].EventTS.Equal(sorted[j].EventTS) {
			return sorted[i].EventTS.Before(sorted[j].EventTS)
		}
		if sorted[i].Version != sorted[j].Version {
			return sorted[i].Version < sorted[j].Version
		}
		return sorted[i].EventID.String() < sorted[j].EventID.String()
	})
	h := sha256.New()
	for _, record := range sorted {
		h.Write([]byte(record.EventID.String()))
		h.Write([]byte(record.EventTS.UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashEvents computes the same digest from wire-format events, used by the
// replica to compare its local log against the server's.
func HashEvents(list []events.Event) string {
	h := sha256.New()
	for _, e := range events.SortEvents(list) {
		h.Write([]byte(e.ID.String()))
		h.Write([]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func recordToEvent(record models.EventRecord) events.Event {
	return events.Event{
		ID:            record.EventID,
		AggregateType: events.AggregateType(record.AggregateType),
		AggregateID:   record.AggregateID,
		EventType:     events.EventType(record.EventType),
		EventData:     record.EventData,
		Timestamp:     record.EventTS.UTC(),
		Version:       record.Version,
	}
}
