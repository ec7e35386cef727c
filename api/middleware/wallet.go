package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/debitumapp/debitum/api/responses"
	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
	"github.com/debitumapp/debitum/pkg/logger"
)

const walletIDHeader = "X-Wallet-Id"

type membershipChecker interface {
	RequireMembership(ctx context.Context, walletID, userID uuid.UUID) error
}

// WalletContext resolves the wallet id (X-Wallet-Id header, falling back to
// the wallet_id query parameter), verifies the authenticated user belongs to
// that wallet, and seeds the context. Must run after Auth.
func WalletContext(wallets membershipChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(walletIDHeader))
			if raw == "" {
				raw = strings.TrimSpace(r.URL.Query().Get("wallet_id"))
			}
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "missing wallet header"))
				return
			}
			walletID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid wallet id"))
				return
			}
			userID, err := uuid.Parse(UserIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if err := wallets.RequireMembership(r.Context(), walletID, userID); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxWalletID, walletID.String())
			if logg != nil {
				ctx = logg.WithWalletID(ctx, walletID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
