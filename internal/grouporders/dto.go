package grouporders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	"github.com/angelmondragon/supplyhub-backend/pkg/types"
)

// ProductInput lists one catalog product in a new group order. Quantity is
// the leader's own opening pledge.
type ProductInput struct {
	ProductID      uuid.UUID            `json:"product_id" validate:"required"`
	TargetQuantity int                  `json:"target_quantity" validate:"gte=0,max=1000000000"`
	Quantity       int                  `json:"quantity" validate:"gte=0,max=1000000"`
	DiscountTiers  []types.DiscountTier `json:"discount_tiers"`
}

type CreateGroupOrderInput struct {
	LeaderID    uuid.UUID      `json:"-"`
	LeaderName  string         `json:"leader_name" validate:"max=120"`
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=2000"`
	Deadline    time.Time      `json:"deadline" validate:"required"`
	MinMembers  int            `json:"min_members" validate:"gte=1"`
	MaxMembers  int            `json:"max_members" validate:"gte=1"`
	Products    []ProductInput `json:"products" validate:"required,min=1,max=100,dive"`
}

type QuantitiesInput struct {
	Updates []QuantityUpdate `json:"updates" validate:"required,min=1,dive"`
}

type GroupOrderDTO struct {
	ID              uuid.UUID                 `json:"id"`
	LeaderID        uuid.UUID                 `json:"leader_id"`
	LeaderName      string                    `json:"leader_name"`
	Title           string                    `json:"title"`
	Description     string                    `json:"description,omitempty"`
	MemberIDs       []uuid.UUID               `json:"member_ids"`
	Status          enums.GroupOrderStatus    `json:"status"`
	Deadline        time.Time                 `json:"deadline"`
	MinMembers      int                       `json:"min_members"`
	MaxMembers      int                       `json:"max_members"`
	Products        []types.GroupOrderProduct `json:"products"`
	TotalValueCents int64                     `json:"total_value_cents"`
	OrderIDs        []uuid.UUID               `json:"order_ids,omitempty"`
	Version         int64                     `json:"version"`
	ClosedAt        *time.Time                `json:"closed_at,omitempty"`
	CancelledAt     *time.Time                `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

func mapGroupOrderDTO(g *models.GroupOrder) *GroupOrderDTO {
	if g == nil {
		return nil
	}
	return &GroupOrderDTO{
		ID:              g.ID,
		LeaderID:        g.LeaderID,
		LeaderName:      g.LeaderName,
		Title:           g.Title,
		Description:     g.Description,
		MemberIDs:       append([]uuid.UUID(nil), g.MemberIDs...),
		Status:          g.Status,
		Deadline:        g.Deadline,
		MinMembers:      g.MinMembers,
		MaxMembers:      g.MaxMembers,
		Products:        g.Products.Clone(),
		TotalValueCents: g.TotalValueCents,
		OrderIDs:        append([]uuid.UUID(nil), g.OrderIDs...),
		Version:         g.Version,
		ClosedAt:        g.ClosedAt,
		CancelledAt:     g.CancelledAt,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
}
