package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debitumapp/debitum/internal/auth"
	"github.com/debitumapp/debitum/internal/events"
	"github.com/debitumapp/debitum/internal/eventstore"
	"github.com/debitumapp/debitum/internal/projections"
	"github.com/debitumapp/debitum/internal/wallets"
	pkgauth "github.com/debitumapp/debitum/pkg/auth"
	"github.com/debitumapp/debitum/pkg/config"
	"github.com/debitumapp/debitum/pkg/db/models"
	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
	"github.com/debitumapp/debitum/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubSessionChecker struct{}

func (stubSessionChecker) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubAuthService struct{}

func (stubAuthService) Register(context.Context, auth.RegisterRequest) (*auth.LoginResponse, error) {
	return &auth.LoginResponse{AccessToken: "stub"}, nil
}

func (stubAuthService) Login(context.Context, auth.LoginRequest) (*auth.LoginResponse, error) {
	return &auth.LoginResponse{AccessToken: "stub"}, nil
}

func (stubAuthService) Logout(context.Context, string) error { return nil }

type stubWalletService struct {
	member bool
}

func (s stubWalletService) Create(_ context.Context, userID uuid.UUID, name string) (*wallets.WalletDTO, error) {
	return &wallets.WalletDTO{ID: uuid.New(), Name: name, OwnerID: userID}, nil
}

func (stubWalletService) ListForUser(context.Context, uuid.UUID) ([]wallets.WalletDTO, error) {
	return []wallets.WalletDTO{}, nil
}

func (s stubWalletService) RequireMembership(context.Context, uuid.UUID, uuid.UUID) error {
	if !s.member {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this wallet")
	}
	return nil
}

func (stubWalletService) AddMember(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return nil
}

type stubEventService struct{}

func (stubEventService) AcceptEvents(context.Context, uuid.UUID, uuid.UUID, []events.Event) (*eventstore.AcceptResult, error) {
	return &eventstore.AcceptResult{AcceptedIDs: []string{}, Rejected: []eventstore.RejectedEvent{}}, nil
}

func (stubEventService) EventsSince(context.Context, uuid.UUID, time.Time, uuid.UUID, int) ([]events.Event, error) {
	return []events.Event{}, nil
}

func (stubEventService) EventsForAggregate(context.Context, uuid.UUID, events.AggregateType, uuid.UUID) ([]events.Event, error) {
	return []events.Event{}, nil
}

func (stubEventService) Hash(context.Context, uuid.UUID) (*eventstore.HashResult, error) {
	return &eventstore.HashResult{Hash: "abc", Count: 0}, nil
}

type stubReadService struct{}

func (stubReadService) ListContacts(context.Context, uuid.UUID) ([]models.ContactProjection, error) {
	return []models.ContactProjection{}, nil
}

func (stubReadService) GetContact(context.Context, uuid.UUID, uuid.UUID) (*models.ContactProjection, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
}

func (stubReadService) ListTransactions(context.Context, uuid.UUID, *uuid.UUID) ([]models.TransactionProjection, error) {
	return []models.TransactionProjection{}, nil
}

func (stubReadService) Summary(context.Context, uuid.UUID) (*projections.WalletSummary, error) {
	return &projections.WalletSummary{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "debitum-test",
			ExpirationMinutes: 15,
			SessionTTLMinutes: 30,
		},
	}
}

func newTestRouter(t *testing.T, member bool) http.Handler {
	t.Helper()
	return NewRouter(RouterParams{
		Config:         testConfig(),
		Logger:         logger.New(logger.Options{ServiceName: "router-test"}),
		DB:             stubPinger{},
		SessionManager: stubSessionChecker{},
		AuthService:    stubAuthService{},
		WalletService:  stubWalletService{member: member},
		EventService:   stubEventService{},
		ReadService:    stubReadService{},
		SyncMetrics:    nil,
	})
}

func mintToken(t *testing.T) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(testConfig().JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID:   uuid.New(),
		Username: "router-test",
		JTI:      uuid.NewString(),
	})
	require.NoError(t, err)
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, true)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Debitum-Env"))
}

func TestHealthReady(t *testing.T) {
	router := newTestRouter(t, true)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, true)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, true)
	for _, path := range []string{"/api/v1/wallets", "/api/v1/sync/hash", "/api/v1/contacts"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestSyncRequiresWalletHeader(t *testing.T) {
	router := newTestRouter(t, true)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/hash", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncForbiddenForNonMembers(t *testing.T) {
	router := newTestRouter(t, false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/hash", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t))
	req.Header.Set("X-Wallet-Id", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSyncHashHappyPath(t *testing.T) {
	router := newTestRouter(t, true)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/hash", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t))
	req.Header.Set("X-Wallet-Id", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Hash string `json:"hash"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc", body.Data.Hash)
}

func TestSyncAggregateEventsRoute(t *testing.T) {
	router := newTestRouter(t, true)
	path := "/api/v1/sync/aggregates/contact/" + uuid.NewString() + "/events"
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t))
	req.Header.Set("X-Wallet-Id", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Events []events.Event `json:"events"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Data.Events)
}

func TestSyncPushEmptyBatch(t *testing.T) {
	router := newTestRouter(t, true)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/events", strings.NewReader(`{"events":[]}`))
	req.Header.Set("Authorization", "Bearer "+mintToken(t))
	req.Header.Set("X-Wallet-Id", uuid.NewString())
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRouteReachable(t *testing.T) {
	router := newTestRouter(t, true)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"u","password":"p"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
