package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
)

// CreateProductInput is a supplier's new listing.
type CreateProductInput struct {
	Name         string `json:"name" validate:"required,max=200"`
	Unit         string `json:"unit" validate:"required,max=32"`
	PriceCents   int64  `json:"price_cents" validate:"gt=0,max=1000000000"`
	AvailableQty int    `json:"available_qty" validate:"gte=0,max=1000000000"`
	MinOrderQty  int    `json:"min_order_qty" validate:"gte=0,max=1000000"`
}

// RestockInput adds units to an existing listing.
type RestockInput struct {
	Quantity int `json:"quantity" validate:"gt=0,max=1000000"`
}

// ProductDTO is the read shape exposed to the catalog/UI collaborator.
type ProductDTO struct {
	ID           uuid.UUID `json:"id"`
	SupplierID   uuid.UUID `json:"supplier_id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	PriceCents   int64     `json:"price_cents"`
	AvailableQty int       `json:"available_qty"`
	MinOrderQty  int       `json:"min_order_qty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func mapProductDTO(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	return &ProductDTO{
		ID:           p.ID,
		SupplierID:   p.SupplierID,
		Name:         p.Name,
		Unit:         p.Unit,
		PriceCents:   p.PriceCents,
		AvailableQty: p.AvailableQty,
		MinOrderQty:  p.MinOrderQty,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
