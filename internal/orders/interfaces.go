package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/internal/notifications"
	"github.com/angelmondragon/supplyhub-backend/internal/wallet"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, limit int) ([]models.Order, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID, limit int) ([]models.Order, error)
	ListByGroupOrder(ctx context.Context, groupOrderID uuid.UUID) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// escrowLedger is the slice of the wallet service orders settle through. The
// calls join the order's transaction.
type escrowLedger interface {
	HoldInEscrowTx(ctx context.Context, tx *gorm.DB, input wallet.HoldInput) (*wallet.EscrowDTO, error)
	ReleaseFromEscrowTx(ctx context.Context, tx *gorm.DB, escrowID, recipientID uuid.UUID) error
	RefundFromEscrowTx(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID, reason string) error
}

type notifier interface {
	Notify(ctx context.Context, event notifications.Event)
}
