package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
	"github.com/angelmondragon/supplyhub-backend/pkg/pricing"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

// Service exposes supplier listing management and read access for buyers.
type Service interface {
	CreateProduct(ctx context.Context, supplierID uuid.UUID, input CreateProductInput) (*ProductDTO, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListSupplierProducts(ctx context.Context, supplierID uuid.UUID) ([]ProductDTO, error)
	Restock(ctx context.Context, supplierID, productID uuid.UUID, input RestockInput) (*ProductDTO, error)
}

type service struct {
	repo Repository
	log  *logger.Logger
}

// NewService builds a catalog service.
func NewService(repo Repository, log *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, log: log}, nil
}

func (s *service) CreateProduct(ctx context.Context, supplierID uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.PriceCents <= 0 || input.PriceCents > pricing.MaxPriceCents {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "price_cents must be between 1 and %d", pricing.MaxPriceCents)
	}
	if input.AvailableQty < 0 || input.AvailableQty > pricing.MaxStock {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "available_qty must be between 0 and %d", pricing.MaxStock)
	}
	if input.MinOrderQty > pricing.MaxLineQuantity {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "min_order_qty must be at most %d", pricing.MaxLineQuantity)
	}
	minQty := input.MinOrderQty
	if minQty <= 0 {
		minQty = 1
	}

	product := &models.Product{
		SupplierID:   supplierID,
		Name:         name,
		Unit:         strings.TrimSpace(input.Unit),
		PriceCents:   input.PriceCents,
		AvailableQty: input.AvailableQty,
		MinOrderQty:  minQty,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	s.log.Info(s.log.WithField(ctx, "product_id", product.ID.String()), "product listed")
	return mapProductDTO(product), nil
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	return mapProductDTO(product), nil
}

func (s *service) ListSupplierProducts(ctx context.Context, supplierID uuid.UUID) ([]ProductDTO, error) {
	products, err := s.repo.ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	out := make([]ProductDTO, 0, len(products))
	for i := range products {
		out = append(out, *mapProductDTO(&products[i]))
	}
	return out, nil
}

// Restock is the supplier-side stock increase. It shares the conditional
// update with order placement, so a concurrent cancel and restock both land.
func (s *service) Restock(ctx context.Context, supplierID, productID uuid.UUID, input RestockInput) (*ProductDTO, error) {
	if input.Quantity <= 0 || input.Quantity > pricing.MaxLineQuantity {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be between 1 and %d", pricing.MaxLineQuantity)
	}
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.SupplierID != supplierID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to supplier")
	}
	if product.AvailableQty > pricing.MaxStock-input.Quantity {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "stock cannot exceed %d units", pricing.MaxStock).
			WithDetails(map[string]any{"available": product.AvailableQty})
	}
	if _, err := s.repo.AdjustStock(ctx, productID, input.Quantity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock product")
	}
	return s.GetProduct(ctx, productID)
}

func (s *service) load(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}
