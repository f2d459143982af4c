package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
)

// WalletTransaction is an append-only ledger entry. AmountCents is signed from
// the owning user's point of view.
type WalletTransaction struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Type               enums.TransactionType   `gorm:"column:type;type:transaction_type;not null"`
	AmountCents        int64                   `gorm:"column:amount_cents;not null"`
	BalanceBeforeCents int64                   `gorm:"column:balance_before_cents;not null"`
	BalanceAfterCents  int64                   `gorm:"column:balance_after_cents;not null"`
	Status             enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'completed'"`
	PaymentMethod      *enums.PaymentMethod    `gorm:"column:payment_method;type:payment_method"`
	EscrowID           *uuid.UUID              `gorm:"column:escrow_id;type:uuid"`
	RelatedEntityID    *uuid.UUID              `gorm:"column:related_entity_id;type:uuid"`
	Description        string                  `gorm:"column:description;not null;default:''"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (t *WalletTransaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
