package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
)

type stubCatalog struct {
	catalog.Service
	createFn  func(ctx context.Context, supplierID uuid.UUID, input catalog.CreateProductInput) (*catalog.ProductDTO, error)
	restockFn func(ctx context.Context, supplierID, productID uuid.UUID, input catalog.RestockInput) (*catalog.ProductDTO, error)
}

func (s stubCatalog) CreateProduct(ctx context.Context, supplierID uuid.UUID, input catalog.CreateProductInput) (*catalog.ProductDTO, error) {
	return s.createFn(ctx, supplierID, input)
}

func (s stubCatalog) Restock(ctx context.Context, supplierID, productID uuid.UUID, input catalog.RestockInput) (*catalog.ProductDTO, error) {
	return s.restockFn(ctx, supplierID, productID, input)
}

func TestCreateProduct(t *testing.T) {
	supplier := uuid.New()
	svc := stubCatalog{createFn: func(_ context.Context, id uuid.UUID, input catalog.CreateProductInput) (*catalog.ProductDTO, error) {
		if id != supplier {
			t.Fatalf("expected supplier %s got %s", supplier, id)
		}
		return &catalog.ProductDTO{ID: uuid.New(), SupplierID: id, Name: input.Name}, nil
	}}
	body := map[string]any{"name": "Tomatoes", "unit": "kg", "price_cents": 500, "available_qty": 20}
	resp := httptest.NewRecorder()
	CreateProduct(svc, nil).ServeHTTP(resp, newRequest(t, http.MethodPost, "/products", supplier, body, nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var dto catalog.ProductDTO
	decodeData(t, resp, &dto)
	if dto.Name != "Tomatoes" {
		t.Fatalf("unexpected product %+v", dto)
	}
}

func TestRestockForeignProduct(t *testing.T) {
	productID := uuid.New()
	svc := stubCatalog{restockFn: func(context.Context, uuid.UUID, uuid.UUID, catalog.RestockInput) (*catalog.ProductDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another supplier")
	}}
	resp := httptest.NewRecorder()
	RestockProduct(svc, nil).ServeHTTP(resp, newRequest(t, http.MethodPost, "/products/x/restock", uuid.New(),
		map[string]any{"quantity": 5}, map[string]string{"productId": productID.String()}))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}
