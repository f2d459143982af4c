package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
)

// Repository persists products. Stock only moves through AdjustStock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID) ([]models.Product, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// LockByID selects the product FOR UPDATE. Call it inside a transaction.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListBySupplier(ctx context.Context, supplierID uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("created_at ASC").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// AdjustStock adds delta to available_qty in a single statement that refuses
// to go below zero. It reports false when the guard rejected the change or the
// product no longer exists.
func (r *repository) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET available_qty = available_qty + ?,
			updated_at = ?
		WHERE id = ? AND available_qty + ? >= 0
	`, delta, time.Now().UTC(), id, delta)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
