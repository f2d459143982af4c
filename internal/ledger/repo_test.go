package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
)

func TestRepository_EnsureWalletIsIdempotent(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, repo.EnsureWallet(ctx, userID))
	require.NoError(t, repo.EnsureWallet(ctx, userID))

	var count int64
	require.NoError(t, client.DB().Model(&models.Wallet{}).Where("user_id = ?", userID).Count(&count).Error)
	require.Equal(t, int64(1), count)

	wallet, err := repo.FindWallet(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, enums.WalletStatusActive, wallet.Status)
	require.Zero(t, wallet.BalanceCents)
}

func TestRepository_LockAndSaveWallet(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	userID := uuid.New()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		wallet, err := txRepo.LockWallet(ctx, userID)
		if err != nil {
			return err
		}
		wallet.BalanceCents = 2500
		wallet.TransactionCount = 1
		return txRepo.SaveWallet(ctx, wallet)
	})
	require.NoError(t, err)

	wallet, err := repo.FindWallet(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(2500), wallet.BalanceCents)
	require.Equal(t, 1, wallet.TransactionCount)
}

func TestRepository_FindWalletMissing(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())

	_, err := repo.FindWallet(context.Background(), uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_ListEscrowsDueForRelease(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := &models.EscrowRecord{PayerID: uuid.New(), OrderID: uuid.New(), AmountCents: 100, Status: enums.EscrowStatusHeld, RequiresDeliveryConfirmation: true, AutoReleaseAt: &past}
	later := &models.EscrowRecord{PayerID: uuid.New(), OrderID: uuid.New(), AmountCents: 100, Status: enums.EscrowStatusHeld, RequiresDeliveryConfirmation: true, AutoReleaseAt: &future}
	settled := &models.EscrowRecord{PayerID: uuid.New(), OrderID: uuid.New(), AmountCents: 100, Status: enums.EscrowStatusReleased, RequiresDeliveryConfirmation: true, AutoReleaseAt: &past}
	for _, e := range []*models.EscrowRecord{due, later, settled} {
		require.NoError(t, repo.CreateEscrow(ctx, e))
	}

	escrows, err := repo.ListEscrowsDueForRelease(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, escrows, 1)
	require.Equal(t, due.ID, escrows[0].ID)
}

func TestRepository_UpdateEscrow(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	escrow := &models.EscrowRecord{PayerID: uuid.New(), OrderID: uuid.New(), AmountCents: 700, Status: enums.EscrowStatusHeld}
	require.NoError(t, repo.CreateEscrow(ctx, escrow))
	require.NoError(t, repo.UpdateEscrow(ctx, escrow.ID, map[string]any{"status": enums.EscrowStatusRefunded}))

	got, err := repo.FindEscrow(ctx, escrow.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, got.Status)
}
