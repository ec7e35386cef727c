package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/debitumapp/debitum/api/middleware"
	"github.com/debitumapp/debitum/api/responses"
	"github.com/debitumapp/debitum/api/validators"
	"github.com/debitumapp/debitum/internal/wallets"
	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
	"github.com/debitumapp/debitum/pkg/logger"
)

type createWalletRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

type addMemberRequest struct {
	WalletID string `json:"wallet_id" validate:"required,uuid"`
	UserID   string `json:"user_id" validate:"required,uuid"`
}

// WalletsCreate creates a wallet owned by the caller.
func WalletsCreate(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createWalletRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		wallet, err := svc.Create(r.Context(), userID, body.Name)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, wallet)
	}
}

// WalletsList returns the caller's wallets.
func WalletsList(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// WalletsAddMember grants another user membership of a wallet the caller owns.
func WalletsAddMember(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body addMemberRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		walletID, _ := uuid.Parse(body.WalletID)
		newUserID, _ := uuid.Parse(body.UserID)

		if err := svc.AddMember(r.Context(), walletID, userID, newUserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"status": "added"})
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return id, nil
}
