package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	"github.com/angelmondragon/supplyhub-backend/pkg/types"
)

// Order is scoped to exactly one supplier. Rows are never deleted; a
// cancellation is a status.
type Order struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID       uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	SupplierID    uuid.UUID           `gorm:"column:supplier_id;type:uuid;not null;index"`
	GroupOrderID  *uuid.UUID          `gorm:"column:group_order_id;type:uuid"`
	Items         types.OrderItems    `gorm:"column:items;type:jsonb;serializer:json;not null"`
	TotalCents    int64               `gorm:"column:total_cents;not null"`
	Status        enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	EscrowID      *uuid.UUID          `gorm:"column:escrow_id;type:uuid"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	DeliveredAt   *time.Time          `gorm:"column:delivered_at"`
	CancelledAt   *time.Time          `gorm:"column:cancelled_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
