package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	"github.com/angelmondragon/supplyhub-backend/pkg/types"
)

// GroupOrder is stored as one document so the whole aggregate is rewritten
// under a single version check. MemberIDs is derived from the contributions.
type GroupOrder struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	LeaderID        uuid.UUID                `gorm:"column:leader_id;type:uuid;not null;index"`
	LeaderName      string                   `gorm:"column:leader_name;not null;default:''"`
	Title           string                   `gorm:"column:title;not null"`
	Description     string                   `gorm:"column:description;not null;default:''"`
	MemberIDs       []uuid.UUID              `gorm:"column:member_ids;type:jsonb;serializer:json;not null"`
	Status          enums.GroupOrderStatus   `gorm:"column:status;type:group_order_status;not null;default:'open'"`
	Deadline        time.Time                `gorm:"column:deadline;not null"`
	MinMembers      int                      `gorm:"column:min_members;not null"`
	MaxMembers      int                      `gorm:"column:max_members;not null"`
	Products        types.GroupOrderProducts `gorm:"column:products;type:jsonb;serializer:json;not null"`
	TotalValueCents int64                    `gorm:"column:total_value_cents;not null;default:0"`
	OrderIDs        []uuid.UUID              `gorm:"column:order_ids;type:jsonb;serializer:json"`
	Version         int64                    `gorm:"column:version;not null;default:1"`
	ClosedAt        *time.Time               `gorm:"column:closed_at"`
	CancelledAt     *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (g *GroupOrder) BeforeCreate(*gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// HasMember reports whether id currently contributes.
func (g GroupOrder) HasMember(id uuid.UUID) bool {
	for _, m := range g.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}
