package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a supplier listing. AvailableQty is only changed through the
// conditional stock update in the catalog repository.
type Product struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SupplierID   uuid.UUID `gorm:"column:supplier_id;type:uuid;not null;index"`
	Name         string    `gorm:"column:name;not null"`
	Unit         string    `gorm:"column:unit;not null"`
	PriceCents   int64     `gorm:"column:price_cents;not null"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	MinOrderQty  int       `gorm:"column:min_order_qty;not null;default:1"`
	IsActive     bool      `gorm:"column:is_active;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
