// Package engine runs the replica's sync loop: push local edits, compare
// log digests, and pull what the server has that the replica does not. The
// loop tolerates an unreachable server by backing off and keeping local
// edits queued.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/internal/eventstore"
	"github.com/debitumapp/debitum/internal/replica/transport"
	"github.com/debitumapp/debitum/pkg/config"
	"github.com/debitumapp/debitum/pkg/logger"
)

// Status is the engine's externally visible state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusBackoff Status = "backoff"
	StatusOffline Status = "offline"
)

// ErrOffline is returned by Sync while the engine is switched offline.
var ErrOffline = errors.New("replica is offline")

type localStore interface {
	ListAll(ctx context.Context) ([]events.Event, error)
	ListUnsynced(ctx context.Context) ([]events.Event, error)
	MarkSynced(ctx context.Context, ids []uuid.UUID) error
	DeleteByEventIDs(ctx context.Context, ids []uuid.UUID) error
	AppendIfAbsent(ctx context.Context, e events.Event, synced bool) (bool, error)
	ReplaceAll(ctx context.Context, list []events.Event) error
	CountEvents(ctx context.Context) (int64, error)
	Watermark(ctx context.Context) (time.Time, uuid.UUID, error)
	SetWatermark(ctx context.Context, ts time.Time, lastID uuid.UUID) error
}

type serverGateway interface {
	GetHash(ctx context.Context) (eventstore.HashResult, error)
	EventsSince(ctx context.Context, since time.Time, afterID uuid.UUID, limit int) ([]events.Event, error)
	PushEvents(ctx context.Context, batch []events.Event) (eventstore.AcceptResult, error)
}

// Snapshot reports the engine's state for callers polling sync progress.
type Snapshot struct {
	Status    Status
	Online    bool
	Reachable bool
	LastSync  time.Time
	LastError string
	Pending   int64
}

// Engine drives one wallet replica's reconciliation with the server.
type Engine struct {
	store  localStore
	server serverGateway
	cfg    config.ReplicaConfig
	log    *logger.Logger

	mu          sync.Mutex
	status      Status
	online      bool
	lastSync    time.Time
	lastErr     error
	reachable   bool
	reachableAt time.Time
	kick        chan struct{}
	syncCancel  context.CancelFunc
}

// NewEngine wires the sync engine. The engine starts online.
func NewEngine(store localStore, server serverGateway, cfg config.ReplicaConfig, log *logger.Logger) *Engine {
	return &Engine{
		store:  store,
		server: server,
		cfg:    cfg,
		log:    log,
		status: StatusIdle,
		online: true,
		kick:   make(chan struct{}, 1),
	}
}

// SetOnline flips connectivity. Going online triggers an immediate sync
// attempt on the running loop; going offline makes Sync a no-op until
// re-enabled.
func (en *Engine) SetOnline(online bool) {
	en.mu.Lock()
	wasOnline := en.online
	en.online = online
	if !online {
		en.status = StatusOffline
		if en.syncCancel != nil {
			en.syncCancel()
		}
	} else if en.status == StatusOffline {
		en.status = StatusIdle
		en.reachableAt = time.Time{}
	}
	en.mu.Unlock()

	if online && !wasOnline {
		en.Kick()
	}
}

// Kick requests a sync round from the running loop without waiting for the
// next interval tick.
func (en *Engine) Kick() {
	select {
	case en.kick <- struct{}{}:
	default:
	}
}

// Status returns the engine's current state, including how many local
// events still await acknowledgement.
func (en *Engine) Status() Snapshot {
	en.mu.Lock()
	snap := Snapshot{
		Status:    en.status,
		Online:    en.online,
		Reachable: en.reachable,
		LastSync:  en.lastSync,
	}
	if en.lastErr != nil {
		snap.LastError = en.lastErr.Error()
	}
	en.mu.Unlock()

	if pending, err := en.store.ListUnsynced(context.Background()); err == nil {
		snap.Pending = int64(len(pending))
	}
	return snap
}

// Reachable reports whether the server answered recently. The result is
// cached briefly so UI polling does not hammer the network.
func (en *Engine) Reachable(ctx context.Context) bool {
	en.mu.Lock()
	if time.Since(en.reachableAt) < en.cfg.ReachabilityTTL {
		cached := en.reachable
		en.mu.Unlock()
		return cached
	}
	en.mu.Unlock()

	_, err := en.server.GetHash(ctx)
	en.noteReachability(err == nil || !isNetworkError(err))
	return err == nil || !isNetworkError(err)
}

// Run loops until ctx is cancelled: sync on every interval tick or kick,
// retrying network failures with exponential backoff.
func (en *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(en.cfg.SyncInterval)
	defer ticker.Stop()

	// First round immediately on start.
	en.syncWithBackoff(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			en.syncWithBackoff(ctx)
		case <-en.kick:
			en.syncWithBackoff(ctx)
		}
	}
}

func (en *Engine) syncWithBackoff(ctx context.Context) {
	backoff := retry.WithMaxRetries(en.cfg.BackoffMaxRetries,
		retry.WithCappedDuration(en.cfg.BackoffCap,
			retry.NewExponential(en.cfg.BackoffBase)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := en.Sync(ctx)
		if isNetworkError(err) {
			en.setStatus(StatusBackoff)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && !errors.Is(err, ErrOffline) && ctx.Err() == nil {
		en.log.Error(ctx, "replica.sync.failed", err)
	}
}

// Sync runs one full reconciliation round: push unsynced local events,
// re-check for edits made mid-flight, then compare digests and pull if the
// logs diverged.
func (en *Engine) Sync(ctx context.Context) error {
	en.mu.Lock()
	if !en.online {
		en.mu.Unlock()
		return ErrOffline
	}
	en.status = StatusSyncing
	syncCtx, cancel := context.WithCancel(ctx)
	en.syncCancel = cancel
	en.mu.Unlock()
	defer cancel()

	err := en.syncOnce(syncCtx)

	en.mu.Lock()
	en.lastErr = err
	if err == nil {
		en.lastSync = time.Now().UTC()
		en.status = StatusIdle
	} else if en.status == StatusSyncing {
		en.status = StatusIdle
	}
	en.mu.Unlock()

	en.noteReachability(err == nil || !isNetworkError(err))
	return err
}

func (en *Engine) syncOnce(ctx context.Context) error {
	if err := en.pushUnsynced(ctx); err != nil {
		return err
	}
	// Edits appended while the push was in flight go out before the digest
	// comparison, otherwise the pull below would flag them as divergence.
	if err := en.pushUnsynced(ctx); err != nil {
		return err
	}
	return en.reconcile(ctx)
}

func (en *Engine) pushUnsynced(ctx context.Context) error {
	pending, err := en.store.ListUnsynced(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	result, err := en.server.PushEvents(ctx, pending)
	if err != nil {
		return err
	}

	accepted := make([]uuid.UUID, 0, len(result.AcceptedIDs))
	for _, raw := range result.AcceptedIDs {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			continue
		}
		accepted = append(accepted, id)
	}
	var errs []error
	if err := en.store.MarkSynced(ctx, accepted); err != nil {
		errs = append(errs, err)
	}

	// A rejection is final: the event can never be accepted, so retrying it
	// forever would wedge the queue. Drop it and surface the reason.
	if len(result.Rejected) > 0 {
		drop := make([]uuid.UUID, 0, len(result.Rejected))
		for _, rej := range result.Rejected {
			en.log.Warn(ctx, "replica.sync.event_rejected: "+rej.EventID+": "+rej.Reason)
			if id, parseErr := uuid.Parse(rej.EventID); parseErr == nil {
				drop = append(drop, id)
			}
		}
		if err := en.store.DeleteByEventIDs(ctx, drop); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

func (en *Engine) reconcile(ctx context.Context) error {
	serverHash, err := en.server.GetHash(ctx)
	if err != nil {
		return err
	}

	local, err := en.store.ListAll(ctx)
	if err != nil {
		return err
	}
	if eventstore.HashEvents(local) == serverHash.Hash {
		return nil
	}

	// Empty replica: take the server's log wholesale.
	if len(local) == 0 {
		return en.fullPull(ctx)
	}

	if err := en.incrementalPull(ctx); err != nil {
		return err
	}

	// Still divergent after catching up means the logs differ below the
	// watermark. With nothing unsynced left locally a full replace is safe.
	local, err = en.store.ListAll(ctx)
	if err != nil {
		return err
	}
	if eventstore.HashEvents(local) == serverHash.Hash {
		return nil
	}
	pending, err := en.store.ListUnsynced(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return en.fullPull(ctx)
	}
	en.log.Warn(ctx, "replica.sync.divergent_with_pending_events")
	return nil
}

// incrementalPull pages the server log from the stored cursor. The cursor is
// the (timestamp, event id) of the last event seen, so a page boundary inside
// a run of equal timestamps resumes at the right event instead of skipping
// the rest of the run.
func (en *Engine) incrementalPull(ctx context.Context) error {
	since, lastID, err := en.store.Watermark(ctx)
	if err != nil {
		return err
	}

	pageSize := en.cfg.PullPageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	for {
		page, err := en.server.EventsSince(ctx, since, lastID, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, e := range page {
			if _, err := en.store.AppendIfAbsent(ctx, e, true); err != nil {
				return err
			}
		}
		// Pages arrive in (timestamp, id) order; the last event is the cursor.
		since = page[len(page)-1].Timestamp
		lastID = page[len(page)-1].ID
		if err := en.store.SetWatermark(ctx, since, lastID); err != nil {
			return err
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

func (en *Engine) fullPull(ctx context.Context) error {
	pageSize := en.cfg.PullPageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	var all []events.Event
	var since time.Time
	var lastID uuid.UUID
	for {
		page, err := en.server.EventsSince(ctx, since, lastID, pageSize)
		if err != nil {
			return err
		}
		if len(page) > 0 {
			all = append(all, page...)
			since = page[len(page)-1].Timestamp
			lastID = page[len(page)-1].ID
		}
		if len(page) < pageSize {
			break
		}
	}

	if err := en.store.ReplaceAll(ctx, all); err != nil {
		return err
	}
	return en.store.SetWatermark(ctx, since, lastID)
}

func (en *Engine) setStatus(s Status) {
	en.mu.Lock()
	en.status = s
	en.mu.Unlock()
}

func (en *Engine) noteReachability(ok bool) {
	en.mu.Lock()
	en.reachable = ok
	en.reachableAt = time.Now()
	en.mu.Unlock()
}

func isNetworkError(err error) bool {
	var netErr *transport.NetworkError
	return errors.As(err, &netErr)
}
