package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supplyhub-backend/internal/catalog"
	"github.com/angelmondragon/supplyhub-backend/internal/ledger"
	"github.com/angelmondragon/supplyhub-backend/internal/notifications"
	"github.com/angelmondragon/supplyhub-backend/internal/orders"
	"github.com/angelmondragon/supplyhub-backend/internal/wallet"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

type releaseFixture struct {
	escrows  ledger.Repository
	products catalog.Repository
	wallets  wallet.Service
	orders   orders.Service
}

func newReleaseFixture(t *testing.T) releaseFixture {
	t.Helper()
	client := dbtest.Open(t)
	escrows := ledger.NewRepository(client.DB())
	products := catalog.NewRepository(client.DB())
	wallets, err := wallet.NewService(escrows, client, logger.Nop(), nil)
	require.NoError(t, err)
	svc, err := orders.NewService(orders.Deps{
		Repo:     orders.NewRepository(client.DB()),
		Products: products,
		Escrow:   wallets,
		Tx:       client,
		Notifier: &notifications.Recorder{},
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	return releaseFixture{escrows: escrows, products: products, wallets: wallets, orders: svc}
}

// paidOrder creates and pays a 1000 cent order.
func (f releaseFixture) paidOrder(t *testing.T, buyer, supplier uuid.UUID) *orders.OrderDTO {
	t.Helper()
	ctx := context.Background()
	p := &models.Product{SupplierID: supplier, Name: "Beans", Unit: "kg", PriceCents: 500, AvailableQty: 10, MinOrderQty: 1, IsActive: true}
	require.NoError(t, f.products.Create(ctx, p))
	_, err := f.wallets.TopUp(ctx, buyer, wallet.AmountInput{AmountCents: 5000, Method: enums.PaymentMethodCard})
	require.NoError(t, err)

	created, err := f.orders.CreateOrder(ctx, orders.CreateOrderInput{
		BuyerID: buyer,
		Items:   []orders.ItemInput{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	paid, err := f.orders.ProcessOrderPayment(ctx, created[0].ID, buyer)
	require.NoError(t, err)
	return paid
}

func (f releaseFixture) job(t *testing.T, at time.Time) *EscrowReleaseJob {
	t.Helper()
	job, err := NewEscrowReleaseJob(EscrowReleaseJobParams{
		Logger:  logger.Nop(),
		Escrows: f.escrows,
		Orders:  f.orders,
		Now:     func() time.Time { return at },
	})
	require.NoError(t, err)
	return job
}

func TestEscrowReleaseJobSettlesOverdueOrders(t *testing.T) {
	f := newReleaseFixture(t)
	ctx := context.Background()
	buyer, supplier := uuid.New(), uuid.New()
	order := f.paidOrder(t, buyer, supplier)

	// not yet due
	require.NoError(t, f.job(t, time.Now().UTC()).Run(ctx))
	current, err := f.orders.GetOrder(ctx, order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, current.Status)

	later := time.Now().UTC().AddDate(0, 0, wallet.DefaultAutoReleaseDays+1)
	require.NoError(t, f.job(t, later).Run(ctx))

	current, err = f.orders.GetOrder(ctx, order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, current.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, current.PaymentStatus)

	supplierWallet, err := f.wallets.GetWallet(ctx, supplier)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), supplierWallet.BalanceCents)

	buyerWallet, err := f.wallets.GetWallet(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), buyerWallet.BalanceCents)
	assert.Zero(t, buyerWallet.EscrowBalanceCents)

	// a second sweep finds nothing left to do
	require.NoError(t, f.job(t, later).Run(ctx))
}

func TestEscrowReleaseJobSkipsOrphanEscrow(t *testing.T) {
	f := newReleaseFixture(t)
	ctx := context.Background()
	payer := uuid.New()
	_, err := f.wallets.TopUp(ctx, payer, wallet.AmountInput{AmountCents: 500, Method: enums.PaymentMethodCard})
	require.NoError(t, err)
	escrow, err := f.wallets.HoldInEscrow(ctx, wallet.HoldInput{PayerID: payer, OrderID: uuid.New(), AmountCents: 300})
	require.NoError(t, err)

	later := time.Now().UTC().AddDate(0, 0, wallet.DefaultAutoReleaseDays+1)
	require.NoError(t, f.job(t, later).Run(ctx))

	held, err := f.wallets.GetEscrow(ctx, escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusHeld, held.Status)
}

type stubEscrows struct {
	due []models.EscrowRecord
	err error
}

func (s stubEscrows) ListEscrowsDueForRelease(context.Context, time.Time, int) ([]models.EscrowRecord, error) {
	return s.due, s.err
}

type stubSettler struct {
	order      *orders.OrderDTO
	confirmErr error
	confirms   int
}

func (s *stubSettler) GetOrder(context.Context, uuid.UUID, uuid.UUID) (*orders.OrderDTO, error) {
	return s.order, nil
}

func (s *stubSettler) ConfirmDelivery(context.Context, uuid.UUID, uuid.UUID) (*orders.OrderDTO, error) {
	s.confirms++
	return s.order, s.confirmErr
}

func TestEscrowReleaseJobReportsSettlementFailures(t *testing.T) {
	escrowID := uuid.New()
	settler := &stubSettler{
		order: &orders.OrderDTO{
			ID:            uuid.New(),
			SupplierID:    uuid.New(),
			Status:        enums.OrderStatusProcessing,
			PaymentStatus: enums.PaymentStatusPaid,
			EscrowID:      &escrowID,
		},
		confirmErr: errors.New("db down"),
	}
	job, err := NewEscrowReleaseJob(EscrowReleaseJobParams{
		Logger:  logger.Nop(),
		Escrows: stubEscrows{due: []models.EscrowRecord{{ID: escrowID}}},
		Orders:  settler,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, 1, settler.confirms)
}

func TestEscrowReleaseJobSkipsMismatchedEscrow(t *testing.T) {
	other := uuid.New()
	settler := &stubSettler{order: &orders.OrderDTO{
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPaid,
		EscrowID:      &other,
	}}
	job, err := NewEscrowReleaseJob(EscrowReleaseJobParams{
		Logger:  logger.Nop(),
		Escrows: stubEscrows{due: []models.EscrowRecord{{ID: uuid.New()}}},
		Orders:  settler,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, settler.confirms)
}

func TestEscrowReleaseJobListFailure(t *testing.T) {
	job, err := NewEscrowReleaseJob(EscrowReleaseJobParams{
		Logger:  logger.Nop(),
		Escrows: stubEscrows{err: errors.New("timeout")},
		Orders:  &stubSettler{},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, escrowReleaseJobName, job.Name())
}
