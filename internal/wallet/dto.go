package wallet

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
)

// AmountInput is the body of a top-up or withdrawal.
type AmountInput struct {
	AmountCents int64               `json:"amount_cents" validate:"gt=0"`
	Method      enums.PaymentMethod `json:"method" validate:"required"`
}

// HoldInput moves funds from a payer's balance into escrow for an order.
type HoldInput struct {
	PayerID     uuid.UUID
	OrderID     uuid.UUID
	AmountCents int64
	Description string
}

type WalletDTO struct {
	UserID             uuid.UUID          `json:"user_id"`
	BalanceCents       int64              `json:"balance_cents"`
	EscrowBalanceCents int64              `json:"escrow_balance_cents"`
	TotalEarningsCents int64              `json:"total_earnings_cents"`
	TotalSpentCents    int64              `json:"total_spent_cents"`
	TransactionCount   int                `json:"transaction_count"`
	Status             enums.WalletStatus `json:"status"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type TransactionDTO struct {
	ID                 uuid.UUID               `json:"id"`
	Type               enums.TransactionType   `json:"type"`
	AmountCents        int64                   `json:"amount_cents"`
	BalanceBeforeCents int64                   `json:"balance_before_cents"`
	BalanceAfterCents  int64                   `json:"balance_after_cents"`
	Status             enums.TransactionStatus `json:"status"`
	PaymentMethod      *enums.PaymentMethod    `json:"payment_method,omitempty"`
	EscrowID           *uuid.UUID              `json:"escrow_id,omitempty"`
	RelatedEntityID    *uuid.UUID              `json:"related_entity_id,omitempty"`
	Description        string                  `json:"description,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
}

type EscrowDTO struct {
	ID            uuid.UUID          `json:"id"`
	PayerID       uuid.UUID          `json:"payer_id"`
	OrderID       uuid.UUID          `json:"order_id"`
	AmountCents   int64              `json:"amount_cents"`
	Status        enums.EscrowStatus `json:"status"`
	AutoReleaseAt *time.Time         `json:"auto_release_at,omitempty"`
}

func mapWalletDTO(w *models.Wallet) *WalletDTO {
	return &WalletDTO{
		UserID:             w.UserID,
		BalanceCents:       w.BalanceCents,
		EscrowBalanceCents: w.EscrowBalanceCents,
		TotalEarningsCents: w.TotalEarningsCents,
		TotalSpentCents:    w.TotalSpentCents,
		TransactionCount:   w.TransactionCount,
		Status:             w.Status,
		UpdatedAt:          w.UpdatedAt,
	}
}

func mapTransactionDTO(t models.WalletTransaction) TransactionDTO {
	return TransactionDTO{
		ID:                 t.ID,
		Type:               t.Type,
		AmountCents:        t.AmountCents,
		BalanceBeforeCents: t.BalanceBeforeCents,
		BalanceAfterCents:  t.BalanceAfterCents,
		Status:             t.Status,
		PaymentMethod:      t.PaymentMethod,
		EscrowID:           t.EscrowID,
		RelatedEntityID:    t.RelatedEntityID,
		Description:        t.Description,
		CreatedAt:          t.CreatedAt,
	}
}

func mapEscrowDTO(e *models.EscrowRecord) *EscrowDTO {
	return &EscrowDTO{
		ID:            e.ID,
		PayerID:       e.PayerID,
		OrderID:       e.OrderID,
		AmountCents:   e.AmountCents,
		Status:        e.Status,
		AutoReleaseAt: e.AutoReleaseAt,
	}
}
