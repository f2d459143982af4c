package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
)

func seedProduct(t *testing.T, repo Repository, qty int) *models.Product {
	t.Helper()
	product := &models.Product{
		SupplierID:   uuid.New(),
		Name:         "Tomatoes",
		Unit:         "crate",
		PriceCents:   1200,
		AvailableQty: qty,
		MinOrderQty:  1,
		IsActive:     true,
	}
	require.NoError(t, repo.Create(context.Background(), product))
	return product
}

func TestRepository_AdjustStockGuardsNegative(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	product := seedProduct(t, repo, 10)

	ok, err := repo.AdjustStock(ctx, product.ID, -6)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.AdjustStock(ctx, product.ID, -6)
	require.NoError(t, err)
	require.False(t, ok, "second decrement must be refused")

	got, err := repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 4, got.AvailableQty)

	ok, err = repo.AdjustStock(ctx, product.ID, 3)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = repo.FindByID(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 7, got.AvailableQty)
}

func TestRepository_AdjustStockMissingProduct(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())

	ok, err := repo.AdjustStock(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRepository_ListBySupplier(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	first := seedProduct(t, repo, 1)
	seedProduct(t, repo, 1)

	products, err := repo.ListBySupplier(context.Background(), first.SupplierID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, first.ID, products[0].ID)
}
