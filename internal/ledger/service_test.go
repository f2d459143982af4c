package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
)

type fakeRepository struct {
	Repository
	wallet *models.Wallet
	txns   []models.WalletTransaction
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) FindWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if f.wallet == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.wallet, nil
}

func (f *fakeRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	return f.txns, nil
}

func entry(typ enums.TransactionType, amount int64) models.WalletTransaction {
	return models.WalletTransaction{Type: typ, AmountCents: amount, Status: enums.TransactionStatusCompleted}
}

func TestReplay(t *testing.T) {
	escrowID := uuid.New()
	txns := []models.WalletTransaction{
		entry(enums.TransactionTypeDeposit, 10000),
		entry(enums.TransactionTypeWithdrawal, -1500),
		entry(enums.TransactionTypeEscrowHold, -3000),
		entry(enums.TransactionTypeEscrowHold, -2000),
		entry(enums.TransactionTypeEscrowRelease, -3000),
		entry(enums.TransactionTypeRefund, 2000),
		{Type: enums.TransactionTypeDeposit, AmountCents: 99, Status: enums.TransactionStatusFailed, EscrowID: &escrowID},
	}

	total, escrow := Replay(txns)
	if total != 10000-1500-3000 {
		t.Fatalf("unexpected total %d", total)
	}
	if escrow != 0 {
		t.Fatalf("expected escrow to net to zero, got %d", escrow)
	}
}

func TestService_ReconcileBalanced(t *testing.T) {
	userID := uuid.New()
	repo := &fakeRepository{
		wallet: &models.Wallet{UserID: userID, BalanceCents: 6000, EscrowBalanceCents: 3000, TransactionCount: 3},
		txns: []models.WalletTransaction{
			entry(enums.TransactionTypeDeposit, 10000),
			entry(enums.TransactionTypeWithdrawal, -1000),
			entry(enums.TransactionTypeEscrowHold, -3000),
		},
	}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	rec, err := svc.Reconcile(context.Background(), userID)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if !rec.Balanced() {
		t.Fatalf("expected balanced reconciliation, got %+v", rec)
	}
}

func TestService_ReconcileDetectsDrift(t *testing.T) {
	userID := uuid.New()
	repo := &fakeRepository{
		wallet: &models.Wallet{UserID: userID, BalanceCents: 500, TransactionCount: 1, UpdatedAt: time.Now()},
		txns:   []models.WalletTransaction{entry(enums.TransactionTypeDeposit, 400)},
	}
	svc, _ := NewService(repo)

	rec, err := svc.Reconcile(context.Background(), userID)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if rec.Balanced() {
		t.Fatal("expected drift to be reported")
	}
}

func TestService_ReconcileMissingWallet(t *testing.T) {
	svc, _ := NewService(&fakeRepository{})

	_, err := svc.Reconcile(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewServiceRequiresRepository(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
