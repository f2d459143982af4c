package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	"github.com/angelmondragon/supplyhub-backend/pkg/types"
)

// ItemInput is one cart line. Name, unit, supplier and price are always
// snapshotted from the catalog; UnitPriceCents overrides the catalog price and
// is only settable in-process (group order fan-out passes the discounted
// price). Clients that echo the catalog fields back (price, supplier_id,
// product_name) are accepted, but those values are never trusted.
type ItemInput struct {
	ProductID      uuid.UUID `json:"product_id" validate:"required"`
	Quantity       int       `json:"quantity" validate:"gt=0,max=1000000"`
	UnitPriceCents int64     `json:"-"`

	ClientPrice       *int64     `json:"price,omitempty"`
	ClientSupplierID  *uuid.UUID `json:"supplier_id,omitempty"`
	ClientProductName string     `json:"product_name,omitempty" validate:"max=200"`
}

// CreateOrderInput is a buyer's checkout. A cart spanning several suppliers
// produces one order per supplier.
type CreateOrderInput struct {
	BuyerID      uuid.UUID   `json:"-"`
	GroupOrderID *uuid.UUID  `json:"-"`
	Items        []ItemInput `json:"items" validate:"required,min=1,max=100,dive"`
}

type UpdateStatusInput struct {
	Status enums.OrderStatus `json:"status" validate:"required"`
}

type RefundInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

type OrderDTO struct {
	ID            uuid.UUID           `json:"id"`
	BuyerID       uuid.UUID           `json:"buyer_id"`
	SupplierID    uuid.UUID           `json:"supplier_id"`
	GroupOrderID  *uuid.UUID          `json:"group_order_id,omitempty"`
	Items         []types.OrderItem   `json:"items"`
	TotalCents    int64               `json:"total_cents"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	EscrowID      *uuid.UUID          `json:"escrow_id,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	DeliveredAt   *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func mapOrderDTO(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	items := make([]types.OrderItem, len(o.Items))
	copy(items, o.Items)
	return &OrderDTO{
		ID:            o.ID,
		BuyerID:       o.BuyerID,
		SupplierID:    o.SupplierID,
		GroupOrderID:  o.GroupOrderID,
		Items:         items,
		TotalCents:    o.TotalCents,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		EscrowID:      o.EscrowID,
		PaidAt:        o.PaidAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func mapOrderDTOs(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *mapOrderDTO(&rows[i]))
	}
	return out
}
