package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
)

// EscrowRecord holds funds debited from PayerID until a release or refund.
// Only a held record may change status.
type EscrowRecord struct {
	ID                           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	PayerID                      uuid.UUID          `gorm:"column:payer_id;type:uuid;not null;index"`
	OrderID                      uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	AmountCents                  int64              `gorm:"column:amount_cents;not null"`
	Status                       enums.EscrowStatus `gorm:"column:status;type:escrow_status;not null;default:'held'"`
	Description                  string             `gorm:"column:description;not null;default:''"`
	RequiresDeliveryConfirmation bool               `gorm:"column:requires_delivery_confirmation;not null"`
	AutoReleaseAfterDays         int                `gorm:"column:auto_release_after_days;not null;default:7"`
	AutoReleaseAt                *time.Time         `gorm:"column:auto_release_at"`
	RecipientID                  *uuid.UUID         `gorm:"column:recipient_id;type:uuid"`
	Reason                       *string            `gorm:"column:reason"`
	SettledAt                    *time.Time         `gorm:"column:settled_at"`
	CreatedAt                    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *EscrowRecord) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
