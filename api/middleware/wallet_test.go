package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
)

type membershipFunc func(ctx context.Context, walletID, userID uuid.UUID) error

func (f membershipFunc) RequireMembership(ctx context.Context, walletID, userID uuid.UUID) error {
	return f(ctx, walletID, userID)
}

func allowAll(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func TestWalletContextSeedsContext(t *testing.T) {
	walletID := uuid.New()
	userID := uuid.New()
	var seen string
	handler := WalletContext(membershipFunc(allowAll), authTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = WalletIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Wallet-Id", walletID.String())
	req = req.WithContext(WithUserID(req.Context(), userID.String()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, walletID.String(), seen)
}

func TestWalletContextAcceptsQueryParam(t *testing.T) {
	walletID := uuid.New()
	var seen string
	handler := WalletContext(membershipFunc(allowAll), authTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = WalletIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/?wallet_id="+walletID.String(), nil)
	req = req.WithContext(WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, walletID.String(), seen)
}

func TestWalletContextMissingHeader(t *testing.T) {
	handler := WalletContext(membershipFunc(allowAll), authTestLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletContextRejectsNonMember(t *testing.T) {
	deny := membershipFunc(func(context.Context, uuid.UUID, uuid.UUID) error {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this wallet")
	})
	handler := WalletContext(deny, authTestLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Wallet-Id", uuid.NewString())
	req = req.WithContext(WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWalletContextRequiresAuth(t *testing.T) {
	handler := WalletContext(membershipFunc(allowAll), authTestLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Wallet-Id", uuid.NewString())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
