package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
)

// Wallet holds one user's spendable and escrowed balances. Both stay >= 0.
type Wallet struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	BalanceCents       int64              `gorm:"column:balance_cents;not null;default:0"`
	EscrowBalanceCents int64              `gorm:"column:escrow_balance_cents;not null;default:0"`
	TotalEarningsCents int64              `gorm:"column:total_earnings_cents;not null;default:0"`
	TotalSpentCents    int64              `gorm:"column:total_spent_cents;not null;default:0"`
	TransactionCount   int                `gorm:"column:transaction_count;not null;default:0"`
	Status             enums.WalletStatus `gorm:"column:status;type:wallet_status;not null;default:'active'"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// TotalCents is balance plus escrow.
func (w Wallet) TotalCents() int64 {
	return w.BalanceCents + w.EscrowBalanceCents
}
