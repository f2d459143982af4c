package grouporders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
	"github.com/angelmondragon/supplyhub-backend/pkg/pricing"
	"github.com/angelmondragon/supplyhub-backend/pkg/types"
)

// QuantityUpdate sets a member's pledge for one product. Zero withdraws it.
type QuantityUpdate struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=0,max=1000000"`
}

// Aggregate applies memberID's new quantities to group. It moves each
// product's running quantity by the delta against the member's previous
// pledge, re-selects every discount tier, derives membership from the
// contribution maps and recomputes the total value. group is only modified
// when the whole batch is valid.
func Aggregate(group *models.GroupOrder, memberID uuid.UUID, updates []QuantityUpdate) error {
	if memberID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	products := group.Products.Clone()
	index := make(map[uuid.UUID]int, len(products))
	for i, p := range products {
		index[p.ProductID] = i
	}

	seen := make(map[uuid.UUID]bool, len(updates))
	for _, u := range updates {
		if u.Quantity < 0 || u.Quantity > pricing.MaxLineQuantity {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be between 0 and %d", pricing.MaxLineQuantity).
				WithDetails(map[string]any{"product_id": u.ProductID, "max": pricing.MaxLineQuantity})
		}
		if seen[u.ProductID] {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "product %s listed twice", u.ProductID)
		}
		seen[u.ProductID] = true

		i, ok := index[u.ProductID]
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "Product %s is not part of this group order", u.ProductID).
				WithDetails(map[string]any{"product_id": u.ProductID})
		}
		p := &products[i]
		if p.MemberContributions == nil {
			p.MemberContributions = make(map[uuid.UUID]int)
		}
		next := p.CurrentQuantity + u.Quantity - p.MemberContributions[memberID]
		if next < 0 || next > pricing.MaxStock {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "group quantity for product %s must stay between 0 and %d", u.ProductID, pricing.MaxStock).
				WithDetails(map[string]any{"product_id": u.ProductID, "current_quantity": p.CurrentQuantity})
		}
		p.CurrentQuantity = next
		if u.Quantity == 0 {
			delete(p.MemberContributions, memberID)
		} else {
			p.MemberContributions[memberID] = u.Quantity
		}
	}

	for i := range products {
		products[i].CurrentDiscount = pricing.SelectDiscount(products[i].DiscountTiers, products[i].CurrentQuantity)
	}

	total, err := pricing.GroupTotalCents(products)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "group order total exceeds the supported amount")
	}

	group.Products = products
	group.MemberIDs = deriveMembers(group.MemberIDs, products, memberID)
	group.TotalValueCents = total
	return nil
}

// deriveMembers keeps existing order and adds or drops memberID depending on
// whether they still pledge anything.
func deriveMembers(current []uuid.UUID, products types.GroupOrderProducts, memberID uuid.UUID) []uuid.UUID {
	contributing := products.MemberTotal(memberID) > 0
	out := make([]uuid.UUID, 0, len(current)+1)
	present := false
	for _, id := range current {
		if id == memberID {
			present = true
			if !contributing {
				continue
			}
		}
		out = append(out, id)
	}
	if contributing && !present {
		out = append(out, memberID)
	}
	return out
}
