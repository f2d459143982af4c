package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
)

// Repository persists wallets, their append-only transactions and escrow
// records. Lock* methods must run inside a transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureWallet(ctx context.Context, userID uuid.UUID) error
	FindWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	LockWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	SaveWallet(ctx context.Context, wallet *models.Wallet) error
	CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error)
	CreateEscrow(ctx context.Context, escrow *models.EscrowRecord) error
	FindEscrow(ctx context.Context, id uuid.UUID) (*models.EscrowRecord, error)
	LockEscrow(ctx context.Context, id uuid.UUID) (*models.EscrowRecord, error)
	UpdateEscrow(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListEscrowsDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureWallet inserts an empty wallet unless one exists. Racing callers are
// resolved by the unique user_id index.
func (r *repository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	wallet := &models.Wallet{
		UserID: userID,
		Status: enums.WalletStatusActive,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(wallet).Error
}

func (r *repository) FindWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// LockWallet creates the wallet if needed and selects it FOR UPDATE.
func (r *repository) LockWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if err := r.EnsureWallet(ctx, userID); err != nil {
		return nil, err
	}
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) SaveWallet(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", wallet.ID).
		Updates(map[string]any{
			"balance_cents":        wallet.BalanceCents,
			"escrow_balance_cents": wallet.EscrowBalanceCents,
			"total_earnings_cents": wallet.TotalEarningsCents,
			"total_spent_cents":    wallet.TotalSpentCents,
			"transaction_count":    wallet.TransactionCount,
			"status":               wallet.Status,
		}).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	var txns []models.WalletTransaction
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) CreateEscrow(ctx context.Context, escrow *models.EscrowRecord) error {
	return r.db.WithContext(ctx).Create(escrow).Error
}

func (r *repository) FindEscrow(ctx context.Context, id uuid.UUID) (*models.EscrowRecord, error) {
	var escrow models.EscrowRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&escrow).Error; err != nil {
		return nil, err
	}
	return &escrow, nil
}

func (r *repository) LockEscrow(ctx context.Context, id uuid.UUID) (*models.EscrowRecord, error) {
	var escrow models.EscrowRecord
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&escrow).Error; err != nil {
		return nil, err
	}
	return &escrow, nil
}

func (r *repository) UpdateEscrow(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListEscrowsDueForRelease returns held escrows whose auto-release horizon has
// passed, oldest first.
func (r *repository) ListEscrowsDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error) {
	var escrows []models.EscrowRecord
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.EscrowStatusHeld).
		Where("auto_release_at IS NOT NULL AND auto_release_at <= ?", now).
		Order("auto_release_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&escrows).Error; err != nil {
		return nil, err
	}
	return escrows, nil
}
