package wallets

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/debitumapp/debitum/pkg/db/models"
	pkgerrors "github.com/debitumapp/debitum/pkg/errors"
)

// Service defines the wallet operations used by the controllers and the
// wallet-scope middleware.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, name string) (*WalletDTO, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]WalletDTO, error)
	RequireMembership(ctx context.Context, walletID, userID uuid.UUID) error
	AddMember(ctx context.Context, walletID, ownerID, newUserID uuid.UUID) error
}

type repository interface {
	CreateWithOwner(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error)
	IsMember(ctx context.Context, walletID, userID uuid.UUID) (bool, error)
	AddMember(ctx context.Context, member *models.WalletMember) error
}

// WalletDTO is the transport shape for a wallet.
type WalletDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type service struct {
	repo repository
}

// NewService constructs a wallet service.
func NewService(repo repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, name string) (*WalletDTO, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet name is required")
	}
	wallet, err := s.repo.CreateWithOwner(ctx, &models.Wallet{Name: name, OwnerUserID: userID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "creating wallet")
	}
	return toDTO(wallet), nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]WalletDTO, error) {
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing wallets")
	}
	out := make([]WalletDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i]))
	}
	return out, nil
}

// RequireMembership returns a forbidden error when the user does not belong
// to the wallet. Every wallet-scoped endpoint goes through this check.
func (s *service) RequireMembership(ctx context.Context, walletID, userID uuid.UUID) error {
	ok, err := s.repo.IsMember(ctx, walletID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "checking wallet membership")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this wallet")
	}
	return nil
}

// AddMember lets the wallet owner grant another user access.
func (s *service) AddMember(ctx context.Context, walletID, ownerID, newUserID uuid.UUID) error {
	wallet, err := s.repo.FindByID(ctx, walletID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "loading wallet")
	}
	if wallet.OwnerUserID != ownerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the wallet owner can add members")
	}
	member := &models.WalletMember{
		WalletID: walletID,
		UserID:   newUserID,
		Role:     models.WalletRoleMember,
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "adding wallet member")
	}
	return nil
}

func toDTO(w *models.Wallet) *WalletDTO {
	return &WalletDTO{
		ID:        w.ID,
		Name:      w.Name,
		OwnerID:   w.OwnerUserID,
		CreatedAt: w.CreatedAt,
	}
}
