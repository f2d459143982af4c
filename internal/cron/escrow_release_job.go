package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/supplyhub-backend/internal/orders"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

const (
	escrowReleaseJobName      = "escrow-auto-release"
	defaultEscrowReleaseBatch = 100
)

type dueEscrowLister interface {
	ListEscrowsDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.EscrowRecord, error)
}

type orderSettler interface {
	GetOrder(ctx context.Context, orderID, actorID uuid.UUID) (*orders.OrderDTO, error)
	ConfirmDelivery(ctx context.Context, orderID, supplierID uuid.UUID) (*orders.OrderDTO, error)
}

type EscrowReleaseJobParams struct {
	Logger  *logger.Logger
	Escrows dueEscrowLister
	Orders  orderSettler
	Batch   int
	Now     func() time.Time
}

// EscrowReleaseJob confirms delivery for paid orders whose escrow passed its
// auto-release date without a buyer confirmation or dispute. Settlement goes
// through the order service so order and ledger stay in step.
type EscrowReleaseJob struct {
	log     *logger.Logger
	escrows dueEscrowLister
	orders  orderSettler
	batch   int
	now     func() time.Time
}

func NewEscrowReleaseJob(params EscrowReleaseJobParams) (*EscrowReleaseJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Escrows == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultEscrowReleaseBatch
	}
	clock := params.Now
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &EscrowReleaseJob{
		log:     params.Logger,
		escrows: params.Escrows,
		orders:  params.Orders,
		batch:   batch,
		now:     clock,
	}, nil
}

func (j *EscrowReleaseJob) Name() string { return escrowReleaseJobName }

func (j *EscrowReleaseJob) Run(ctx context.Context) error {
	due, err := j.escrows.ListEscrowsDueForRelease(ctx, j.now(), j.batch)
	if err != nil {
		return fmt.Errorf("list due escrows: %w", err)
	}

	var (
		errs     error
		released int
	)
	for i := range due {
		ok, err := j.release(ctx, &due[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("escrow %s: %w", due[i].ID, err))
			continue
		}
		if ok {
			released++
		}
	}

	j.log.Info(j.log.WithFields(ctx, map[string]any{
		"due":      len(due),
		"released": released,
	}), "escrow auto-release sweep finished")
	return errs
}

func (j *EscrowReleaseJob) release(ctx context.Context, escrow *models.EscrowRecord) (bool, error) {
	ctx = j.log.WithFields(ctx, map[string]any{
		"escrow_id": escrow.ID.String(),
		"order_id":  escrow.OrderID.String(),
	})

	order, err := j.orders.GetOrder(ctx, escrow.OrderID, escrow.PayerID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) || pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
			j.log.Warn(ctx, "escrow has no matching order; skipping")
			return false, nil
		}
		return false, err
	}
	if order.Status != enums.OrderStatusProcessing ||
		order.PaymentStatus != enums.PaymentStatusPaid ||
		order.EscrowID == nil || *order.EscrowID != escrow.ID {
		j.log.Warn(j.log.WithField(ctx, "order_status", string(order.Status)), "order not awaiting delivery; skipping")
		return false, nil
	}

	if _, err := j.orders.ConfirmDelivery(ctx, order.ID, order.SupplierID); err != nil {
		// raced with a manual confirmation or refund
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ Job = (*EscrowReleaseJob)(nil)
