package orders

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/internal/catalog"
	"github.com/angelmondragon/supplyhub-backend/internal/ledger"
	"github.com/angelmondragon/supplyhub-backend/internal/notifications"
	"github.com/angelmondragon/supplyhub-backend/internal/wallet"
	"github.com/angelmondragon/supplyhub-backend/pkg/db"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
	"github.com/angelmondragon/supplyhub-backend/pkg/pricing"
)

type fixture struct {
	client   *db.Client
	products catalog.Repository
	wallets  wallet.Service
	notes    *notifications.Recorder
	svc      Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	products := catalog.NewRepository(client.DB())
	wallets, err := wallet.NewService(ledger.NewRepository(client.DB()), client, logger.Nop(), nil)
	require.NoError(t, err)
	notes := &notifications.Recorder{}
	svc, err := NewService(Deps{
		Repo:     NewRepository(client.DB()),
		Products: products,
		Escrow:   wallets,
		Tx:       client,
		Notifier: notes,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	return fixture{client: client, products: products, wallets: wallets, notes: notes, svc: svc}
}

func (f fixture) product(t *testing.T, supplierID uuid.UUID, name string, priceCents int64, qty int) *models.Product {
	t.Helper()
	p := &models.Product{
		SupplierID:   supplierID,
		Name:         name,
		Unit:         "kg",
		PriceCents:   priceCents,
		AvailableQty: qty,
		MinOrderQty:  1,
		IsActive:     true,
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f fixture) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	p, err := f.products.FindByID(context.Background(), productID)
	require.NoError(t, err)
	return p.AvailableQty
}

func (f fixture) order(t *testing.T, buyerID, productID uuid.UUID, qty int) OrderDTO {
	t.Helper()
	created, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyerID,
		Items:   []ItemInput{{ProductID: productID, Quantity: qty}},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	return created[0]
}

func (f fixture) fund(t *testing.T, userID uuid.UUID, cents int64) {
	t.Helper()
	_, err := f.wallets.TopUp(context.Background(), userID, wallet.AmountInput{AmountCents: cents, Method: enums.PaymentMethodCard})
	require.NoError(t, err)
}

func (f fixture) balance(t *testing.T, userID uuid.UUID) *wallet.WalletDTO {
	t.Helper()
	w, err := f.wallets.GetWallet(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func TestCreateOrderSplitsBySupplier(t *testing.T) {
	f := newFixture(t)
	farmA, farmB, buyer := uuid.New(), uuid.New(), uuid.New()
	tomatoes := f.product(t, farmA, "Tomatoes", 250, 20)
	onions := f.product(t, farmA, "Onions", 100, 20)
	rice := f.product(t, farmB, "Rice", 900, 5)

	created, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer,
		Items: []ItemInput{
			{ProductID: tomatoes.ID, Quantity: 4},
			{ProductID: rice.ID, Quantity: 2},
			{ProductID: onions.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	first, second := created[0], created[1]
	assert.Equal(t, farmA, first.SupplierID)
	assert.Len(t, first.Items, 2)
	assert.Equal(t, int64(4*250+3*100), first.TotalCents)
	assert.Equal(t, farmB, second.SupplierID)
	assert.Equal(t, int64(2*900), second.TotalCents)
	for _, o := range created {
		assert.Equal(t, buyer, o.BuyerID)
		assert.Equal(t, enums.OrderStatusPending, o.Status)
		assert.Equal(t, enums.PaymentStatusPending, o.PaymentStatus)
	}
	assert.Equal(t, "Tomatoes", first.Items[0].ProductName)
	assert.Equal(t, "kg", first.Items[0].Unit)

	assert.Equal(t, 16, f.stock(t, tomatoes.ID))
	assert.Equal(t, 17, f.stock(t, onions.ID))
	assert.Equal(t, 3, f.stock(t, rice.ID))

	events := f.notes.Events()
	require.Len(t, events, 2)
	assert.Equal(t, farmA, events[0].RecipientID)
	assert.Equal(t, farmB, events[1].RecipientID)
}

func TestCreateOrderInsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	supplier, buyer := uuid.New(), uuid.New()
	onions := f.product(t, supplier, "Onions", 100, 50)
	tomatoes := f.product(t, supplier, "Tomatoes", 250, 4)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer,
		Items: []ItemInput{
			{ProductID: onions.ID, Quantity: 10},
			{ProductID: tomatoes.ID, Quantity: 5},
		},
	})
	require.Error(t, err)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, "Insufficient stock for Tomatoes. Available: 4", pkgerrors.As(err).Message())

	assert.Equal(t, 50, f.stock(t, onions.ID))
	assert.Equal(t, 4, f.stock(t, tomatoes.ID))
	list, err := f.svc.ListBuyerOrders(context.Background(), buyer, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.notes.Events())
}

func TestCreateOrderSumsRepeatedLines(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), "Maize", 300, 5)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: uuid.New(),
		Items: []ItemInput{
			{ProductID: p.ID, Quantity: 3},
			{ProductID: p.ID, Quantity: 3},
		},
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestCreateOrderRejectsHugeRepeatedLines(t *testing.T) {
	f := newFixture(t)
	buyer := uuid.New()
	p := f.product(t, uuid.New(), "Maize", 100, 10)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer,
		Items: []ItemInput{
			{ProductID: p.ID, Quantity: math.MaxInt},
			{ProductID: p.ID, Quantity: math.MaxInt},
			{ProductID: p.ID, Quantity: 3},
		},
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.Equal(t, 10, f.stock(t, p.ID))
	list, err := f.svc.ListBuyerOrders(context.Background(), buyer, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateOrderLargestBatchStaysInRange(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), "Maize", 100, 10)

	items := make([]ItemInput, pricing.MaxOrderLines)
	for i := range items {
		items[i] = ItemInput{ProductID: p.ID, Quantity: pricing.MaxLineQuantity}
	}
	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{BuyerID: uuid.New(), Items: items})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, pricing.MaxOrderLines*pricing.MaxLineQuantity, details["requested"])
	assert.Equal(t, 10, f.stock(t, p.ID))

	items = append(items, ItemInput{ProductID: p.ID, Quantity: 1})
	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{BuyerID: uuid.New(), Items: items})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, uuid.New(), "Beans", 300, 5)

	cases := []struct {
		name  string
		input CreateOrderInput
		code  pkgerrors.Code
	}{
		{"no buyer", CreateOrderInput{Items: []ItemInput{{ProductID: p.ID, Quantity: 1}}}, pkgerrors.CodeUnauthorized},
		{"no items", CreateOrderInput{BuyerID: uuid.New()}, pkgerrors.CodeValidation},
		{"zero quantity", CreateOrderInput{BuyerID: uuid.New(), Items: []ItemInput{{ProductID: p.ID}}}, pkgerrors.CodeValidation},
		{"quantity above line limit", CreateOrderInput{BuyerID: uuid.New(), Items: []ItemInput{{ProductID: p.ID, Quantity: pricing.MaxLineQuantity + 1}}}, pkgerrors.CodeValidation},
		{"unknown product", CreateOrderInput{BuyerID: uuid.New(), Items: []ItemInput{{ProductID: uuid.New(), Quantity: 1}}}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestCreateOrderIgnoresClientCatalogFields(t *testing.T) {
	f := newFixture(t)
	supplier := uuid.New()
	p := f.product(t, supplier, "Beans", 300, 5)
	price, otherSupplier := int64(1), uuid.New()

	created, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: uuid.New(),
		Items: []ItemInput{{
			ProductID:         p.ID,
			Quantity:          2,
			ClientPrice:       &price,
			ClientSupplierID:  &otherSupplier,
			ClientProductName: "Free beans",
		}},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, supplier, created[0].SupplierID)
	assert.Equal(t, int64(600), created[0].TotalCents)
	require.Len(t, created[0].Items, 1)
	assert.Equal(t, "Beans", created[0].Items[0].ProductName)
	assert.Equal(t, int64(300), created[0].Items[0].UnitPriceCents)
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), "Yams", 300, 5)
	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: uuid.New(),
		Items:   []ItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCreateOrderTxUsesPriceOverride(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), "Cassava", 1000, 10)
	groupID := uuid.New()

	var created []OrderDTO
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		created, err = f.svc.CreateOrderTx(context.Background(), tx, CreateOrderInput{
			BuyerID:      uuid.New(),
			GroupOrderID: &groupID,
			Items:        []ItemInput{{ProductID: p.ID, Quantity: 3, UnitPriceCents: 850}},
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, int64(850), created[0].Items[0].UnitPriceCents)
	assert.Equal(t, int64(2550), created[0].TotalCents)
	assert.Equal(t, groupID, *created[0].GroupOrderID)
	// the caller owns notification for in-transaction creation
	assert.Empty(t, f.notes.Events())
}

// Two buyers race for 6 units each out of 10. Exactly one wins.
func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, uuid.New(), "Tomatoes", 250, 10)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateOrder(context.Background(), CreateOrderInput{
				BuyerID: uuid.New(),
				Items:   []ItemInput{{ProductID: p.ID, Quantity: 6}},
			})
		}(i)
	}
	wg.Wait()

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	require.True(t, pkgerrors.HasCode(failures[0], pkgerrors.CodeInsufficientStock))
	assert.Contains(t, []string{
		"Insufficient stock for Tomatoes. Available: 4",
		"Insufficient stock for Tomatoes. Available: 10",
	}, pkgerrors.As(failures[0]).Message())
	assert.Equal(t, 4, f.stock(t, p.ID))
}

func TestCancelOrderRestoresStock(t *testing.T) {
	f := newFixture(t)
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Onions", 100, 10)
	order := f.order(t, buyer, p.ID, 7)
	require.Equal(t, 3, f.stock(t, p.ID))

	_, err := f.svc.CancelOrder(context.Background(), order.ID, uuid.New())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	cancelled, err := f.svc.CancelOrder(context.Background(), order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, enums.PaymentStatusCancelled, cancelled.PaymentStatus)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 10, f.stock(t, p.ID))

	_, err = f.svc.CancelOrder(context.Background(), order.ID, buyer)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCancelOrderSkipsDeletedProduct(t *testing.T) {
	f := newFixture(t)
	supplier, buyer := uuid.New(), uuid.New()
	kept := f.product(t, supplier, "Onions", 100, 10)
	gone := f.product(t, supplier, "Leeks", 100, 10)

	created, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		BuyerID: buyer,
		Items: []ItemInput{
			{ProductID: kept.ID, Quantity: 2},
			{ProductID: gone.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.NoError(t, f.client.DB().Delete(&models.Product{}, "id = ?", gone.ID).Error)

	_, err = f.svc.CancelOrder(context.Background(), created[0].ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t, kept.ID))
}

func TestCancelProcessingOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Onions", 100, 10)
	order := f.order(t, buyer, p.ID, 4)

	_, err := f.svc.UpdateOrderStatus(context.Background(), order.ID, supplier, enums.OrderStatusProcessing)
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(context.Background(), order.ID, buyer)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Contains(t, pkgerrors.As(err).Message(), "processing")
	assert.Equal(t, 6, f.stock(t, p.ID))
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Onions", 100, 10)
	order := f.order(t, buyer, p.ID, 2)

	_, err := f.svc.UpdateOrderStatus(ctx, order.ID, buyer, enums.OrderStatusProcessing)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.UpdateOrderStatus(ctx, order.ID, supplier, enums.OrderStatusDelivered)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.UpdateOrderStatus(ctx, order.ID, supplier, enums.OrderStatus("shipped"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	updated, err := f.svc.UpdateOrderStatus(ctx, order.ID, supplier, enums.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, updated.Status)

	updated, err = f.svc.UpdateOrderStatus(ctx, order.ID, supplier, enums.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, updated.Status)
	assert.NotNil(t, updated.DeliveredAt)

	_, err = f.svc.UpdateOrderStatus(ctx, order.ID, supplier, enums.OrderStatusCancelled)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 8, f.stock(t, p.ID))

	var toBuyer []notifications.Event
	for _, e := range f.notes.Events() {
		if e.RecipientID == buyer {
			toBuyer = append(toBuyer, e)
		}
	}
	require.Len(t, toBuyer, 2)
	assert.Equal(t, "processing", toBuyer[0].Status)
	assert.Equal(t, "delivered", toBuyer[1].Status)
	assert.Equal(t, enums.NotificationTypeOrderStatusChanged, toBuyer[1].Type)
}

func TestSupplierCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Onions", 100, 10)
	order := f.order(t, buyer, p.ID, 5)

	cancelled, err := f.svc.UpdateOrderStatus(context.Background(), order.ID, supplier, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCancelled, cancelled.PaymentStatus)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestPaymentAndDeliveryFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Rice", 500, 10)
	f.fund(t, buyer, 5000)
	order := f.order(t, buyer, p.ID, 4)

	_, err := f.svc.ProcessOrderPayment(ctx, order.ID, supplier)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	paid, err := f.svc.ProcessOrderPayment(ctx, order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, paid.Status)
	assert.Equal(t, enums.PaymentStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.EscrowID)
	assert.NotNil(t, paid.PaidAt)

	w := f.balance(t, buyer)
	assert.Equal(t, int64(3000), w.BalanceCents)
	assert.Equal(t, int64(2000), w.EscrowBalanceCents)

	_, err = f.svc.ProcessOrderPayment(ctx, order.ID, buyer)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.ConfirmDelivery(ctx, order.ID, buyer)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	delivered, err := f.svc.ConfirmDelivery(ctx, order.ID, supplier)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, delivered.PaymentStatus)

	w = f.balance(t, buyer)
	assert.Equal(t, int64(3000), w.BalanceCents)
	assert.Zero(t, w.EscrowBalanceCents)
	assert.Equal(t, int64(2000), f.balance(t, supplier).BalanceCents)

	escrow, err := f.wallets.GetEscrow(ctx, *paid.EscrowID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, escrow.Status)

	_, err = f.svc.RefundOrder(ctx, order.ID, buyer, "changed my mind")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	var paidEvent *notifications.Event
	for _, e := range f.notes.Events() {
		if e.Type == enums.NotificationTypeOrderPaid {
			e := e
			paidEvent = &e
		}
	}
	require.NotNil(t, paidEvent)
	assert.Equal(t, supplier, paidEvent.RecipientID)
}

func TestPaymentWithoutFundsLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Rice", 500, 10)
	f.fund(t, buyer, 1000)
	order := f.order(t, buyer, p.ID, 4)

	_, err := f.svc.ProcessOrderPayment(ctx, order.ID, buyer)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds))
	assert.Equal(t, "Insufficient funds. Available: 10.00, required: 20.00", pkgerrors.As(err).Message())

	got, err := f.svc.GetOrder(ctx, order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
	assert.Equal(t, enums.PaymentStatusPending, got.PaymentStatus)
	assert.Nil(t, got.EscrowID)
	assert.Equal(t, int64(1000), f.balance(t, buyer).BalanceCents)
}

func TestConfirmDeliveryRequiresPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Rice", 500, 10)
	order := f.order(t, buyer, p.ID, 1)

	_, err := f.svc.ConfirmDelivery(ctx, order.ID, supplier)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.UpdateOrderStatus(ctx, order.ID, supplier, enums.OrderStatusProcessing)
	require.NoError(t, err)
	_, err = f.svc.ConfirmDelivery(ctx, order.ID, supplier)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Contains(t, pkgerrors.As(err).Message(), "pending")
}

func TestRefundOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Rice", 500, 10)
	f.fund(t, buyer, 5000)
	order := f.order(t, buyer, p.ID, 4)

	_, err := f.svc.RefundOrder(ctx, order.ID, buyer, "")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.ProcessOrderPayment(ctx, order.ID, buyer)
	require.NoError(t, err)

	_, err = f.svc.RefundOrder(ctx, order.ID, uuid.New(), "")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	refunded, err := f.svc.RefundOrder(ctx, order.ID, supplier, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, refunded.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, refunded.PaymentStatus)
	assert.Equal(t, 10, f.stock(t, p.ID))

	w := f.balance(t, buyer)
	assert.Equal(t, int64(5000), w.BalanceCents)
	assert.Zero(t, w.EscrowBalanceCents)
	assert.Zero(t, w.TotalSpentCents)

	_, err = f.svc.RefundOrder(ctx, order.ID, supplier, "again")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	events := f.notes.Events()
	last := events[len(events)-1]
	assert.Equal(t, enums.NotificationTypeOrderRefunded, last.Type)
	assert.Equal(t, buyer, last.RecipientID)
}

func TestSupplierCancelOfPaidOrderRefundsEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Rice", 500, 10)
	f.fund(t, buyer, 2000)
	order := f.order(t, buyer, p.ID, 2)
	_, err := f.svc.ProcessOrderPayment(ctx, order.ID, buyer)
	require.NoError(t, err)

	cancelled, err := f.svc.UpdateOrderStatus(ctx, order.ID, supplier, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, cancelled.PaymentStatus)
	assert.Equal(t, int64(2000), f.balance(t, buyer).BalanceCents)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestRefundOfDisputedEscrowIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Rice", 500, 10)
	f.fund(t, buyer, 2000)
	order := f.order(t, buyer, p.ID, 2)
	paid, err := f.svc.ProcessOrderPayment(ctx, order.ID, buyer)
	require.NoError(t, err)
	require.NoError(t, f.wallets.DisputeEscrow(ctx, *paid.EscrowID, buyer, "damaged"))

	_, err = f.svc.RefundOrder(ctx, order.ID, buyer, "damaged")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	got, err := f.svc.GetOrder(ctx, order.ID, supplier)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, 8, f.stock(t, p.ID))
}

func TestGetOrderChecksParties(t *testing.T) {
	f := newFixture(t)
	supplier, buyer := uuid.New(), uuid.New()
	p := f.product(t, supplier, "Rice", 500, 10)
	order := f.order(t, buyer, p.ID, 1)

	_, err := f.svc.GetOrder(context.Background(), order.ID, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	_, err = f.svc.GetOrder(context.Background(), uuid.New(), buyer)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	list, err := f.svc.ListSupplierOrders(context.Background(), supplier, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, order.ID, list[0].ID)
}

// Random create/cancel/pay/refund sequences keep stock non-negative and equal
// to the initial stock minus live order quantities.
func TestStockConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	supplier := uuid.New()
	const initial = 40
	p := f.product(t, supplier, "Millet", 100, initial)
	buyers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, b := range buyers {
		f.fund(t, b, 1_000_000)
	}

	live := map[uuid.UUID]OrderDTO{}
	for step := 0; step < 80; step++ {
		buyer := buyers[rng.Intn(len(buyers))]
		switch rng.Intn(4) {
		case 0, 1:
			created, err := f.svc.CreateOrder(ctx, CreateOrderInput{
				BuyerID: buyer,
				Items:   []ItemInput{{ProductID: p.ID, Quantity: rng.Intn(8) + 1}},
			})
			if err != nil {
				require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
				break
			}
			live[created[0].ID] = created[0]
		case 2:
			for id, o := range live {
				if _, err := f.svc.CancelOrder(ctx, id, o.BuyerID); err == nil {
					delete(live, id)
				}
				break
			}
		case 3:
			for id, o := range live {
				if _, err := f.svc.ProcessOrderPayment(ctx, id, o.BuyerID); err != nil {
					break
				}
				if rng.Intn(2) == 0 {
					_, err := f.svc.RefundOrder(ctx, id, o.BuyerID, "")
					require.NoError(t, err)
					delete(live, id)
				}
				break
			}
		}

		reserved := 0
		for _, o := range live {
			reserved += o.Items[0].Quantity
		}
		current := f.stock(t, p.ID)
		require.GreaterOrEqual(t, current, 0)
		require.Equal(t, initial-reserved, current, "step %d", step)
	}
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}
