package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/internal/catalog"
	"github.com/angelmondragon/supplyhub-backend/internal/notifications"
	"github.com/angelmondragon/supplyhub-backend/internal/wallet"
	"github.com/angelmondragon/supplyhub-backend/pkg/db/models"
	"github.com/angelmondragon/supplyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
	"github.com/angelmondragon/supplyhub-backend/pkg/metrics"
	"github.com/angelmondragon/supplyhub-backend/pkg/pricing"
	"github.com/angelmondragon/supplyhub-backend/pkg/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var now = func() time.Time { return time.Now().UTC() }

// Service owns order lifecycle and is the only writer of product stock on
// the checkout path.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) ([]OrderDTO, error)
	CreateOrderTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) ([]OrderDTO, error)
	CancelOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDTO, error)
	UpdateOrderStatus(ctx context.Context, orderID, supplierID uuid.UUID, status enums.OrderStatus) (*OrderDTO, error)
	ProcessOrderPayment(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDTO, error)
	ConfirmDelivery(ctx context.Context, orderID, supplierID uuid.UUID) (*OrderDTO, error)
	RefundOrder(ctx context.Context, orderID, actorID uuid.UUID, reason string) (*OrderDTO, error)
	GetOrder(ctx context.Context, orderID, actorID uuid.UUID) (*OrderDTO, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, limit int) ([]OrderDTO, error)
	ListSupplierOrders(ctx context.Context, supplierID uuid.UUID, limit int) ([]OrderDTO, error)
}

type service struct {
	repo     Repository
	products catalog.Repository
	escrow   escrowLedger
	tx       txRunner
	notifier notifier
	log      *logger.Logger
	metrics  *metrics.Engine
}

// Deps groups the order service collaborators. Metrics may be nil.
type Deps struct {
	Repo     Repository
	Products catalog.Repository
	Escrow   escrowLedger
	Tx       txRunner
	Notifier notifier
	Logger   *logger.Logger
	Metrics  *metrics.Engine
}

// NewService builds the order service with the required dependencies.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if deps.Escrow == nil {
		return nil, fmt.Errorf("escrow ledger required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     deps.Repo,
		products: deps.Products,
		escrow:   deps.Escrow,
		tx:       deps.Tx,
		notifier: deps.Notifier,
		log:      deps.Logger,
		metrics:  deps.Metrics,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) ([]OrderDTO, error) {
	var created []OrderDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.CreateOrderTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, order := range created {
		s.notifier.Notify(ctx, notifications.OrderStatusChanged(order.ID, order.SupplierID, order.Status))
	}
	return created, nil
}

// CreateOrderTx validates stock for every line, writes one pending order per
// supplier and decrements stock, all inside tx. Products are locked in id
// order so concurrent checkouts over the same products cannot deadlock.
func (s *service) CreateOrderTx(ctx context.Context, tx *gorm.DB, input CreateOrderInput) ([]OrderDTO, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	products := s.products.WithTx(tx)

	// each line is at most MaxLineQuantity and there are at most
	// MaxOrderLines lines, so the per-product sums cannot wrap
	requested := make(map[uuid.UUID]int, len(input.Items))
	for _, item := range input.Items {
		requested[item.ProductID] += item.Quantity
	}

	locked := make(map[uuid.UUID]*models.Product, len(requested))
	for _, id := range sortedIDs(requested) {
		product, err := products.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "Product %s not found", id).
					WithDetails(map[string]any{"product_id": id})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock product")
		}
		locked[id] = product
	}

	// first deficient product in cart order wins the error message
	checked := make(map[uuid.UUID]bool, len(requested))
	for _, item := range input.Items {
		if checked[item.ProductID] {
			continue
		}
		checked[item.ProductID] = true
		product := locked[item.ProductID]
		if !product.IsActive {
			return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s is no longer available", product.Name).
				WithDetails(map[string]any{"product_id": product.ID})
		}
		if product.AvailableQty < requested[product.ID] {
			s.metrics.StockRejected()
			return nil, insufficientStock(product, requested[product.ID])
		}
	}

	var (
		supplierOrder []uuid.UUID
		bySupplier    = make(map[uuid.UUID]types.OrderItems)
	)
	for _, item := range input.Items {
		product := locked[item.ProductID]
		price := product.PriceCents
		if item.UnitPriceCents > 0 {
			price = item.UnitPriceCents
		}
		if _, ok := bySupplier[product.SupplierID]; !ok {
			supplierOrder = append(supplierOrder, product.SupplierID)
		}
		lineTotal, err := pricing.LineTotalCents(item.Quantity, price)
		if err != nil {
			return nil, amountTooLarge(product.ID)
		}
		bySupplier[product.SupplierID] = append(bySupplier[product.SupplierID], types.OrderItem{
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       item.Quantity,
			Unit:           product.Unit,
			UnitPriceCents: price,
			LineTotalCents: lineTotal,
		})
	}

	created := make([]OrderDTO, 0, len(supplierOrder))
	for _, supplierID := range supplierOrder {
		items := bySupplier[supplierID]
		lines := make([]int64, len(items))
		for i, item := range items {
			lines[i] = item.LineTotalCents
		}
		total, err := pricing.SumCents(lines...)
		if err != nil {
			return nil, amountTooLarge(supplierID)
		}
		order := &models.Order{
			BuyerID:       input.BuyerID,
			SupplierID:    supplierID,
			GroupOrderID:  input.GroupOrderID,
			Items:         items,
			TotalCents:    total,
			Status:        enums.OrderStatusPending,
			PaymentStatus: enums.PaymentStatusPending,
		}
		if err := repo.Create(ctx, order); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		created = append(created, *mapOrderDTO(order))
	}

	for _, id := range sortedIDs(requested) {
		ok, err := products.AdjustStock(ctx, id, -requested[id])
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			s.metrics.StockRejected()
			current, err := products.FindByID(ctx, id)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
			}
			return nil, insufficientStock(current, requested[id])
		}
	}

	for _, order := range created {
		s.metrics.OrderEvent("created")
		s.log.Info(s.log.WithFields(ctx, map[string]any{
			"order_id":    order.ID.String(),
			"buyer_id":    order.BuyerID.String(),
			"supplier_id": order.SupplierID.String(),
			"total_cents": order.TotalCents,
		}), "order created")
	}
	return created, nil
}

// CancelOrder lets the buyer withdraw a pending order and puts its stock
// back.
func (s *service) CancelOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDTO, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "Only the buyer can cancel this order")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot cancel an order that is %s", order.Status).
				WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
		}
		return s.markCancelled(ctx, tx, order, enums.PaymentStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderEvent("cancelled")
	s.log.Info(s.log.WithOrderID(ctx, order.ID.String()), "order cancelled by buyer")
	s.notifier.Notify(ctx, notifications.OrderStatusChanged(order.ID, order.SupplierID, order.Status))
	return mapOrderDTO(order), nil
}

// UpdateOrderStatus is the supplier's lifecycle control. Delivering a paid
// order releases its escrow; cancelling refunds it. Cancellation always puts
// stock back.
func (s *service) UpdateOrderStatus(ctx context.Context, orderID, supplierID uuid.UUID, status enums.OrderStatus) (*OrderDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", status)
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.SupplierID != supplierID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "Only the supplier can update this order")
		}
		if !order.Status.CanTransitionTo(status) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot move an order that is %s to %s", order.Status, status).
				WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
		}

		paid := order.PaymentStatus == enums.PaymentStatusPaid && order.EscrowID != nil
		switch status {
		case enums.OrderStatusCancelled:
			if paid {
				if err := s.escrow.RefundFromEscrowTx(ctx, tx, *order.EscrowID, "Order cancelled by supplier"); err != nil {
					return err
				}
				return s.markCancelled(ctx, tx, order, enums.PaymentStatusRefunded)
			}
			return s.markCancelled(ctx, tx, order, enums.PaymentStatusCancelled)
		case enums.OrderStatusDelivered:
			if paid {
				return s.deliver(ctx, tx, order)
			}
			deliveredAt := now()
			order.Status, order.DeliveredAt = status, &deliveredAt
			return s.save(ctx, repo, order.ID, map[string]any{
				"status":       status,
				"delivered_at": deliveredAt,
			})
		default:
			order.Status = status
			return s.save(ctx, repo, order.ID, map[string]any{"status": status})
		}
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderEvent(string(status))
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"status":   order.Status.String(),
	}), "order status updated")
	s.notifier.Notify(ctx, notifications.OrderStatusChanged(order.ID, order.BuyerID, order.Status))
	return mapOrderDTO(order), nil
}

// ProcessOrderPayment moves the order total from the buyer's wallet into
// escrow. A failed hold rolls the whole transaction back and leaves the order
// untouched.
func (s *service) ProcessOrderPayment(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDTO, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != buyerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "Only the buyer can pay for this order")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot pay for an order that is %s", order.Status)
		}
		if order.PaymentStatus != enums.PaymentStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Payment is already %s", order.PaymentStatus)
		}

		escrow, err := s.escrow.HoldInEscrowTx(ctx, tx, wallet.HoldInput{
			PayerID:     order.BuyerID,
			OrderID:     order.ID,
			AmountCents: order.TotalCents,
			Description: fmt.Sprintf("Payment for order %s", order.ID),
		})
		if err != nil {
			return err
		}

		paidAt := now()
		order.EscrowID = &escrow.ID
		order.PaymentStatus = enums.PaymentStatusPaid
		order.Status = enums.OrderStatusProcessing
		order.PaidAt = &paidAt
		return s.save(ctx, repo, order.ID, map[string]any{
			"escrow_id":      escrow.ID,
			"payment_status": enums.PaymentStatusPaid,
			"status":         enums.OrderStatusProcessing,
			"paid_at":        paidAt,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderEvent("paid")
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"order_id":    order.ID.String(),
		"escrow_id":   order.EscrowID.String(),
		"total_cents": order.TotalCents,
	}), "order paid")
	event := notifications.OrderStatusChanged(order.ID, order.SupplierID, order.Status)
	event.Type = enums.NotificationTypeOrderPaid
	s.notifier.Notify(ctx, event)
	return mapOrderDTO(order), nil
}

// ConfirmDelivery settles the order's escrow to the supplier.
func (s *service) ConfirmDelivery(ctx context.Context, orderID, supplierID uuid.UUID) (*OrderDTO, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.SupplierID != supplierID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "Only the supplier can confirm delivery")
		}
		if order.Status != enums.OrderStatusProcessing {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot confirm delivery of an order that is %s", order.Status)
		}
		if order.PaymentStatus != enums.PaymentStatusPaid || order.EscrowID == nil {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot confirm delivery while payment is %s", order.PaymentStatus)
		}
		return s.deliver(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderEvent("delivered")
	s.log.Info(s.log.WithOrderID(ctx, order.ID.String()), "order delivered")
	s.notifier.Notify(ctx, notifications.OrderStatusChanged(order.ID, order.BuyerID, order.Status))
	return mapOrderDTO(order), nil
}

// RefundOrder returns a paid, undelivered order's escrow to the buyer and
// restores stock. Either party may request it.
func (s *service) RefundOrder(ctx context.Context, orderID, actorID uuid.UUID, reason string) (*OrderDTO, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != actorID && order.SupplierID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "Only the buyer or supplier can refund this order")
		}
		if order.Status == enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "Cannot refund an order that is delivered")
		}
		if order.PaymentStatus != enums.PaymentStatusPaid || order.EscrowID == nil {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Cannot refund an order whose payment is %s", order.PaymentStatus)
		}
		if err := s.escrow.RefundFromEscrowTx(ctx, tx, *order.EscrowID, reason); err != nil {
			return err
		}
		return s.markCancelled(ctx, tx, order, enums.PaymentStatusRefunded)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderEvent("refunded")
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"actor_id": actorID.String(),
	}), "order refunded")
	recipient := order.SupplierID
	if actorID == order.SupplierID {
		recipient = order.BuyerID
	}
	event := notifications.OrderStatusChanged(order.ID, recipient, order.Status)
	event.Type = enums.NotificationTypeOrderRefunded
	s.notifier.Notify(ctx, event)
	return mapOrderDTO(order), nil
}

func (s *service) GetOrder(ctx context.Context, orderID, actorID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, orderLoadError(err)
	}
	if order.BuyerID != actorID && order.SupplierID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return mapOrderDTO(order), nil
}

func (s *service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, limit int) ([]OrderDTO, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListByBuyer(ctx, buyerID, clampLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list buyer orders")
	}
	return mapOrderDTOs(rows), nil
}

func (s *service) ListSupplierOrders(ctx context.Context, supplierID uuid.UUID, limit int) ([]OrderDTO, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListBySupplier(ctx, supplierID, clampLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list supplier orders")
	}
	return mapOrderDTOs(rows), nil
}

func (s *service) deliver(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if err := s.escrow.ReleaseFromEscrowTx(ctx, tx, *order.EscrowID, order.SupplierID); err != nil {
		return err
	}
	deliveredAt := now()
	order.Status = enums.OrderStatusDelivered
	order.PaymentStatus = enums.PaymentStatusCompleted
	order.DeliveredAt = &deliveredAt
	return s.save(ctx, s.repo.WithTx(tx), order.ID, map[string]any{
		"status":         enums.OrderStatusDelivered,
		"payment_status": enums.PaymentStatusCompleted,
		"delivered_at":   deliveredAt,
	})
}

func (s *service) markCancelled(ctx context.Context, tx *gorm.DB, order *models.Order, payment enums.PaymentStatus) error {
	cancelledAt := now()
	order.Status = enums.OrderStatusCancelled
	order.PaymentStatus = payment
	order.CancelledAt = &cancelledAt
	if err := s.save(ctx, s.repo.WithTx(tx), order.ID, map[string]any{
		"status":         enums.OrderStatusCancelled,
		"payment_status": payment,
		"cancelled_at":   cancelledAt,
	}); err != nil {
		return err
	}
	return s.restoreStock(ctx, s.products.WithTx(tx), order.Items)
}

// restoreStock adds every line's quantity back to its product. A product
// deleted since checkout is skipped.
func (s *service) restoreStock(ctx context.Context, products catalog.Repository, items types.OrderItems) error {
	quantities := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}
	for _, id := range sortedIDs(quantities) {
		ok, err := products.AdjustStock(ctx, id, quantities[id])
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
		if !ok {
			s.log.Warn(s.log.WithField(ctx, "product_id", id.String()), "product missing, stock not restored")
		}
	}
	return nil
}

func (s *service) lockOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.LockByID(ctx, orderID)
	if err != nil {
		return nil, orderLoadError(err)
	}
	return order, nil
}

func (s *service) save(ctx context.Context, repo Repository, orderID uuid.UUID, updates map[string]any) error {
	if err := repo.Update(ctx, orderID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	return nil
}

func validateCreateInput(input CreateOrderInput) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	if len(input.Items) > pricing.MaxOrderLines {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d items per order", pricing.MaxOrderLines)
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: product id required", i)
		}
		if item.Quantity <= 0 || item.Quantity > pricing.MaxLineQuantity {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be between 1 and %d", i, pricing.MaxLineQuantity).
				WithDetails(map[string]any{"field": "quantity", "max": pricing.MaxLineQuantity})
		}
		if item.UnitPriceCents < 0 || item.UnitPriceCents > pricing.MaxPriceCents {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: price out of range", i)
		}
	}
	return nil
}

func amountTooLarge(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "Order total exceeds the supported amount").
		WithDetails(map[string]any{"id": id})
}

func insufficientStock(product *models.Product, requested int) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "Insufficient stock for %s. Available: %d", product.Name, product.AvailableQty).
		WithDetails(map[string]any{
			"product_id": product.ID,
			"available":  product.AvailableQty,
			"requested":  requested,
		})
}

func orderLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func sortedIDs(m map[uuid.UUID]int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
