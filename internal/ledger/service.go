package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
)

// Service answers audit questions over the ledger without mutating it.
type Service interface {
	Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
}

type service struct {
	repo Repository
}

// Reconciliation compares a wallet's stored balances with the balances implied
// by its transaction history.
type Reconciliation struct {
	UserID             uuid.UUID `json:"user_id"`
	BalanceCents       int64     `json:"balance_cents"`
	EscrowBalanceCents int64     `json:"escrow_balance_cents"`
	LedgerBalanceCents int64     `json:"ledger_balance_cents"`
	LedgerEscrowCents  int64     `json:"ledger_escrow_cents"`
	TransactionCount   int       `json:"transaction_count"`
	LedgerEntries      int       `json:"ledger_entries"`
}

// Balanced reports whether stored and derived balances agree.
func (r Reconciliation) Balanced() bool {
	return r.BalanceCents == r.LedgerBalanceCents &&
		r.EscrowBalanceCents == r.LedgerEscrowCents &&
		r.TransactionCount == r.LedgerEntries
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	wallet, err := s.repo.FindWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	txns, err := s.repo.ListTransactions(ctx, userID, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	total, escrow := Replay(txns)
	return &Reconciliation{
		UserID:             userID,
		BalanceCents:       wallet.BalanceCents,
		EscrowBalanceCents: wallet.EscrowBalanceCents,
		LedgerBalanceCents: total - escrow,
		LedgerEscrowCents:  escrow,
		TransactionCount:   wallet.TransactionCount,
		LedgerEntries:      len(txns),
	}, nil
}

// Replay derives (balance + escrow, escrow) from one user's entries.
//
// Amounts are signed from the owner's side: holds are negative and move funds
// into escrow, refunds are positive and move them back, releases are negative
// for the payer (leaving escrow) and positive for the recipient.
func Replay(txns []models.WalletTransaction) (total, escrow int64) {
	for _, txn := range txns {
		if txn.Status != enums.TransactionStatusCompleted {
			continue
		}
		switch txn.Type {
		case enums.TransactionTypeDeposit, enums.TransactionTypeWithdrawal, enums.TransactionTypeFee:
			total += txn.AmountCents
		case enums.TransactionTypeEscrowHold:
			escrow -= txn.AmountCents
		case enums.TransactionTypeRefund:
			escrow -= txn.AmountCents
		case enums.TransactionTypeEscrowRelease:
			total += txn.AmountCents
			if txn.AmountCents < 0 {
				escrow += txn.AmountCents
			}
		}
	}
	return total, escrow
}
