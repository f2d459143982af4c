package grouporders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/supplyhub-backend/pkg/db"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
)

// Repository persists group orders as whole documents guarded by a version.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, group *models.GroupOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error)
	SaveVersioned(ctx context.Context, group *models.GroupOrder) error
	ListOpen(ctx context.Context, limit int) ([]models.GroupOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a group order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, group *models.GroupOrder) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error) {
	var group models.GroupOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// LockByID selects the group order FOR UPDATE. Call it inside a transaction.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.GroupOrder, error) {
	var group models.GroupOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// SaveVersioned rewrites the mutable columns only if the stored version still
// equals group.Version, then bumps group.Version. A lost race yields
// db.ErrStaleWrite.
func (r *repository) SaveVersioned(ctx context.Context, group *models.GroupOrder) error {
	expected := group.Version
	group.Version = expected + 1
	res := r.db.WithContext(ctx).
		Model(group).
		Where("version = ?", expected).
		Select("member_ids", "status", "products", "total_value_cents", "order_ids", "version", "closed_at", "cancelled_at", "updated_at").
		Updates(group)
	if res.Error != nil {
		group.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		group.Version = expected
		return db.ErrStaleWrite
	}
	return nil
}

func (r *repository) ListOpen(ctx context.Context, limit int) ([]models.GroupOrder, error) {
	var groups []models.GroupOrder
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.GroupOrderStatusOpen).
		Order("deadline ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}
