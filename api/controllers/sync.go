package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/debitumapp/debitum/api/middleware"
	"github.com/debitumapp/debitum/api/responses"
	"github.com/debitumapp/debitum/api/validators"
	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/internal/eventstore"
	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
	"github.com/debitumapp/debitum/pkg/logger"
	"github.com/debitumapp/debitum/pkg/metrics"
)

type pushEventsRequest struct {
	Events []events.Event `json:"events" validate:"required"`
}

type pullEventsResponse struct {
	Events []events.Event `json:"events"`
}

// SyncHash returns the wallet's event log digest for divergence checks.
func SyncHash(svc eventstore.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		walletID, err := contextWalletID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Hash(r.Context(), walletID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SyncPull streams wallet events after the caller's watermark, oldest first.
func SyncPull(svc eventstore.Service, m *metrics.SyncMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		walletID, err := contextWalletID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		since, err := validators.ParseQueryTime(r, "since")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		afterID, err := validators.ParseQueryUUID(r, "after_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursorID := uuid.Nil
		if afterID != nil {
			cursorID = *afterID
		}

		start := time.Now()
		list, err := svc.EventsSince(r.Context(), walletID, since, cursorID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		m.ObservePull(time.Since(start))

		if list == nil {
			list = []events.Event{}
		}
		responses.WriteSuccess(w, pullEventsResponse{Events: list})
	}
}

// SyncAggregateEvents returns the full event history of one aggregate,
// oldest first.
func SyncAggregateEvents(svc eventstore.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		walletID, err := contextWalletID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		aggregateType := events.AggregateType(chi.URLParam(r, "aggregateType"))
		aggregateID, err := uuid.Parse(chi.URLParam(r, "aggregateId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid aggregate id"))
			return
		}
		list, err := svc.EventsForAggregate(r.Context(), walletID, aggregateType, aggregateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if list == nil {
			list = []events.Event{}
		}
		responses.WriteSuccess(w, pullEventsResponse{Events: list})
	}
}

// SyncPush accepts a batch of replica events into the wallet log. The
// response always carries the per-event accept/reject breakdown; a partial
// rejection is still a 200.
func SyncPush(svc eventstore.Service, m *metrics.SyncMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		walletID, err := contextWalletID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body pushEventsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		start := time.Now()
		result, err := svc.AcceptEvents(r.Context(), walletID, userID, body.Events)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		m.ObservePush(time.Since(start))

		responses.WriteSuccess(w, result)
	}
}

func contextWalletID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.WalletIDFromContext(r.Context())
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "missing wallet header")
	}
	return id, nil
}
