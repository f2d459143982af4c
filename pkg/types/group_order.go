package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountTier unlocks DiscountPercent once the aggregate quantity reaches MinQuantity.
type DiscountTier struct {
	MinQuantity     int             `json:"min_quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// GroupOrderProduct is one pooled line of a group order. MemberContributions
// only holds members with a positive quantity.
type GroupOrderProduct struct {
	ProductID           uuid.UUID         `json:"product_id"`
	ProductName         string            `json:"product_name"`
	SupplierID          uuid.UUID         `json:"supplier_id"`
	Unit                string            `json:"unit"`
	BasePriceCents      int64             `json:"base_price_cents"`
	TargetQuantity      int               `json:"target_quantity"`
	MinOrderQuantity    int               `json:"min_order_quantity"`
	CurrentQuantity     int               `json:"current_quantity"`
	DiscountTiers       []DiscountTier    `json:"discount_tiers"`
	CurrentDiscount     decimal.Decimal   `json:"current_discount"`
	MemberContributions map[uuid.UUID]int `json:"member_contributions"`
}

type GroupOrderProducts []GroupOrderProduct

// Contribution returns the quantity memberID currently pledges to the product.
func (p GroupOrderProduct) Contribution(memberID uuid.UUID) int {
	if p.MemberContributions == nil {
		return 0
	}
	return p.MemberContributions[memberID]
}

// MemberTotal sums a member's pledges across every product.
func (products GroupOrderProducts) MemberTotal(memberID uuid.UUID) int {
	total := 0
	for _, p := range products {
		total += p.Contribution(memberID)
	}
	return total
}

// Clone deep-copies the products so callers can mutate without aliasing the
// persisted document.
func (products GroupOrderProducts) Clone() GroupOrderProducts {
	if products == nil {
		return nil
	}
	out := make(GroupOrderProducts, len(products))
	for i, p := range products {
		cp := p
		cp.DiscountTiers = append([]DiscountTier(nil), p.DiscountTiers...)
		cp.MemberContributions = make(map[uuid.UUID]int, len(p.MemberContributions))
		for k, v := range p.MemberContributions {
			cp.MemberContributions[k] = v
		}
		out[i] = cp
	}
	return out
}
