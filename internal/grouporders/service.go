package grouporders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/internal/catalog"
	"github.com/angelmondragon/supplyhub-backend/internal/notifications"
	"github.com/angelmondragon/supplyhub-backend/internal/orders"
	"github.com/angelmondragon/supplyhub-backend/pkg/db"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderCreator interface {
	CreateOrderTx(ctx context.Context, tx *gorm.DB, input orders.CreateOrderInput) ([]orders.OrderDTO, error)
}

type notifier interface {
	Notify(ctx context.Context, event notifications.Event)
}

// Service runs the pooled-purchase lifecycle: open -> closed | cancelled.
type Service interface {
	CreateGroupOrder(ctx context.Context, input CreateGroupOrderInput) (*GroupOrderDTO, error)
	UpdateProductQuantities(ctx context.Context, groupOrderID, memberID uuid.UUID, updates []QuantityUpdate) (*GroupOrderDTO, error)
	JoinGroupOrder(ctx context.Context, groupOrderID, memberID uuid.UUID, updates []QuantityUpdate) (*GroupOrderDTO, error)
	LeaveGroupOrder(ctx context.Context, groupOrderID, memberID uuid.UUID) (*GroupOrderDTO, error)
	CloseGroupOrder(ctx context.Context, groupOrderID, requesterID uuid.UUID) (*GroupOrderDTO, error)
	CancelGroupOrder(ctx context.Context, groupOrderID, requesterID uuid.UUID) (*GroupOrderDTO, error)
	GetGroupOrder(ctx context.Context, groupOrderID uuid.UUID) (*GroupOrderDTO, error)
	ListOpenGroupOrders(ctx context.Context, limit int) ([]GroupOrderDTO, error)
}

// Deps groups the group order service collaborators. Metrics may be nil and
// a zero Retry falls back to db.DefaultRetryPolicy.
type Deps struct {
	Repo     Repository
	Products catalog.Repository
	Orders   orderCreator
	Tx       txRunner
	Notifier notifier
	Logger   *logger.Logger
	Metrics  *metrics.Engine
	Retry    db.RetryPolicy
}

type service struct {
	repo     Repository
	products catalog.Repository
	orders   orderCreator
	tx       txRunner
	notifier notifier
	log      *logger.Logger
	metrics  *metrics.Engine
	retry    db.RetryPolicy
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("group orders repository required")
	}
	if deps.Products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("order service required")
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
	retry := deps.Retry
	if retry == (db.RetryPolicy{}) {
		retry = db.DefaultRetryPolicy
	}
	return &service{
		repo:     deps.Repo,
		products: deps.Products,
		orders:   deps.Orders,
		tx:       deps.Tx,
		notifier: deps.Notifier,
		log:      deps.Logger,
		metrics:  deps.Metrics,
		retry:    retry,
	}, nil
}

// CreateGroupOrder snapshots each listed product from the catalog and seeds
// the leader as the first contributor.
func (s *service) CreateGroupOrder(ctx context.Context, input CreateGroupOrderInput) (*GroupOrderDTO, error) {
	if err := validateCreateInput(input, now()); err != nil {
		return nil, err
	}

	products := make(types.GroupOrderProducts, 0, len(input.Products))
	opening := make([]QuantityUpdate, 0, len(input.Products))
	for _, in := range input.Products {
		product, err := s.products.FindByID(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "Product %s not found", in.ProductID)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if !product.IsActive {
			return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s is no longer available", product.Name)
		}
		products = append(products, types.GroupOrderProduct{
			ProductID:           product.ID,
			ProductName:         product.Name,
			SupplierID:          product.SupplierID,
			Unit:                product.Unit,
			BasePriceCents:      product.PriceCents,
			TargetQuantity:      in.TargetQuantity,
			MinOrderQuantity:    product.MinOrderQty,
			DiscountTiers:       append([]types.DiscountTier(nil), in.DiscountTiers...),
			MemberContributions: map[uuid.UUID]int{},
		})
		opening = append(opening, QuantityUpdate{ProductID: product.ID, Quantity: in.Quantity})
	}

	group := &models.GroupOrder{
		LeaderID:    input.LeaderID,
		LeaderName:  strings.TrimSpace(input.LeaderName),
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		MemberIDs:   []uuid.UUID{input.LeaderID},
		Status:      enums.GroupOrderStatusOpen,
		Deadline:    input.Deadline.UTC(),
		MinMembers:  input.MinMembers,
		MaxMembers:  input.MaxMembers,
		Products:    products,
		OrderIDs:    []uuid.UUID{},
		Version:     1,
	}
	if err := Aggregate(group, input.LeaderID, opening); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create group order")
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"group_order_id":    group.ID.String(),
		"leader_id":         group.LeaderID.String(),
		"total_value_cents": group.TotalValueCents,
	}), "group order created")
	return mapGroupOrderDTO(group), nil
}

// UpdateProductQuantities replaces memberID's pledges for the listed
// products. A first positive pledge from a non-member is a join and passes
// the same deadline and capacity checks.
func (s *service) UpdateProductQuantities(ctx context.Context, groupOrderID, memberID uuid.UUID, updates []QuantityUpdate) (*GroupOrderDTO, error) {
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one quantity update required")
	}
	group, err := s.mutate(ctx, "update_quantities", groupOrderID, func(group *models.GroupOrder) error {
		if err := requireOpen(group); err != nil {
			return err
		}
		wasMember := group.HasMember(memberID)
		if err := Aggregate(group, memberID, updates); err != nil {
			return err
		}
		if !wasMember && group.HasMember(memberID) {
			if err := checkJoinable(group, len(group.MemberIDs)-1); err != nil {
				return err
			}
		}
		return requireLeaderContribution(group)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"group_order_id":    group.ID.String(),
		"member_id":         memberID.String(),
		"total_value_cents": group.TotalValueCents,
	}), "group order quantities updated")
	return mapGroupOrderDTO(group), nil
}

// JoinGroupOrder adds memberID with an opening pledge. Membership follows
// contribution, so a join needs at least one positive quantity.
func (s *service) JoinGroupOrder(ctx context.Context, groupOrderID, memberID uuid.UUID, updates []QuantityUpdate) (*GroupOrderDTO, error) {
	if !hasPositive(updates) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "joining requires a quantity for at least one product")
	}
	group, err := s.mutate(ctx, "join", groupOrderID, func(group *models.GroupOrder) error {
		if err := requireOpen(group); err != nil {
			return err
		}
		if group.HasMember(memberID) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "Already a member of this group order")
		}
		if err := checkJoinable(group, len(group.MemberIDs)); err != nil {
			return err
		}
		return Aggregate(group, memberID, updates)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"group_order_id": group.ID.String(),
		"member_id":      memberID.String(),
		"members":        len(group.MemberIDs),
	}), "member joined group order")
	return mapGroupOrderDTO(group), nil
}

// LeaveGroupOrder withdraws every pledge of memberID. The leader cannot
// leave; they cancel instead.
func (s *service) LeaveGroupOrder(ctx context.Context, groupOrderID, memberID uuid.UUID) (*GroupOrderDTO, error) {
	group, err := s.mutate(ctx, "leave", groupOrderID, func(group *models.GroupOrder) error {
		if err := requireOpen(group); err != nil {
			return err
		}
		if memberID == group.LeaderID {
			return pkgerrors.New(pkgerrors.CodeLeaderCannotLeave, "The group leader cannot leave. Cancel the group order instead")
		}
		if !group.HasMember(memberID) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "Not a member of this group order")
		}
		zeroes := make([]QuantityUpdate, 0, len(group.Products))
		for _, p := range group.Products {
			if p.Contribution(memberID) > 0 {
				zeroes = append(zeroes, QuantityUpdate{ProductID: p.ProductID})
			}
		}
		return Aggregate(group, memberID, zeroes)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"group_order_id": group.ID.String(),
		"member_id":      memberID.String(),
	}), "member left group order")
	return mapGroupOrderDTO(group), nil
}

// CloseGroupOrder turns every pledge into a regular order, one per member per
// supplier, at the final discounted price. All orders and the status change
// commit in one transaction: any failure leaves the group open and creates
// nothing.
func (s *service) CloseGroupOrder(ctx context.Context, groupOrderID, requesterID uuid.UUID) (*GroupOrderDTO, error) {
	var (
		group   *models.GroupOrder
		created []orders.OrderDTO
	)
	attempt := 0
	err := db.Retry(ctx, s.retry, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.metrics.GroupOrderRetry("close")
		}
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			g, err := repo.LockByID(ctx, groupOrderID)
			if err != nil {
				return groupLoadError(err)
			}
			if g.LeaderID != requesterID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "Only the group leader can close the group order")
			}
			if err := requireOpen(g); err != nil {
				return err
			}
			if err := checkClosable(g); err != nil {
				return err
			}

			spawned, err := s.fanOut(ctx, tx, g)
			if err != nil {
				return err
			}

			closedAt := now()
			g.Status = enums.GroupOrderStatusClosed
			g.ClosedAt = &closedAt
			g.OrderIDs = make([]uuid.UUID, 0, len(spawned))
			for _, o := range spawned {
				g.OrderIDs = append(g.OrderIDs, o.ID)
			}
			if err := repo.SaveVersioned(ctx, g); err != nil {
				return saveError(err)
			}
			group, created = g, spawned
			return nil
		})
	})
	if err != nil {
		return nil, conflictOnExhaustion(err)
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"group_order_id": group.ID.String(),
		"orders":         len(created),
	}), "group order closed")
	for _, member := range group.MemberIDs {
		s.notifier.Notify(ctx, notifications.GroupOrderEvent(enums.NotificationTypeGroupOrderClosed, group.ID, member, group.Status))
	}
	for _, o := range created {
		s.notifier.Notify(ctx, notifications.OrderStatusChanged(o.ID, o.SupplierID, o.Status))
	}
	return mapGroupOrderDTO(group), nil
}

// fanOut creates the orders for a closing group, members in join order and
// suppliers in product order.
func (s *service) fanOut(ctx context.Context, tx *gorm.DB, group *models.GroupOrder) ([]orders.OrderDTO, error) {
	var created []orders.OrderDTO
	groupID := group.ID
	for _, member := range group.MemberIDs {
		var suppliers []uuid.UUID
		bySupplier := make(map[uuid.UUID][]orders.ItemInput)
		for _, p := range group.Products {
			qty := p.Contribution(member)
			if qty <= 0 {
				continue
			}
			if _, ok := bySupplier[p.SupplierID]; !ok {
				suppliers = append(suppliers, p.SupplierID)
			}
			bySupplier[p.SupplierID] = append(bySupplier[p.SupplierID], orders.ItemInput{
				ProductID:      p.ProductID,
				Quantity:       qty,
				UnitPriceCents: max(pricing.DiscountedUnitCents(p.BasePriceCents, p.CurrentDiscount), 1),
			})
		}
		for _, supplierID := range suppliers {
			spawned, err := s.orders.CreateOrderTx(ctx, tx, orders.CreateOrderInput{
				BuyerID:      member,
				GroupOrderID: &groupID,
				Items:        bySupplier[supplierID],
			})
			if err != nil {
				return nil, err
			}
			created = append(created, spawned...)
		}
	}
	return created, nil
}

func (s *service) CancelGroupOrder(ctx context.Context, groupOrderID, requesterID uuid.UUID) (*GroupOrderDTO, error) {
	group, err := s.mutate(ctx, "cancel", groupOrderID, func(group *models.GroupOrder) error {
		if group.LeaderID != requesterID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "Only the group leader can cancel the group order")
		}
		if err := requireOpen(group); err != nil {
			return err
		}
		cancelledAt := now()
		group.Status = enums.GroupOrderStatusCancelled
		group.CancelledAt = &cancelledAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithGroupOrderID(ctx, group.ID.String()), "group order cancelled")
	for _, member := range group.MemberIDs {
		if member == group.LeaderID {
			continue
		}
		s.notifier.Notify(ctx, notifications.GroupOrderEvent(enums.NotificationTypeGroupOrderCancelled, group.ID, member, group.Status))
	}
	return mapGroupOrderDTO(group), nil
}

func (s *service) GetGroupOrder(ctx context.Context, groupOrderID uuid.UUID) (*GroupOrderDTO, error) {
	group, err := s.repo.FindByID(ctx, groupOrderID)
	if err != nil {
		return nil, groupLoadError(err)
	}
	return mapGroupOrderDTO(group), nil
}

func (s *service) ListOpenGroupOrders(ctx context.Context, limit int) ([]GroupOrderDTO, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.repo.ListOpen(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list group orders")
	}
	out := make([]GroupOrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *mapGroupOrderDTO(&rows[i]))
	}
	return out, nil
}

// mutate reloads the group, applies fn and writes it back under the version
// check, retrying from a fresh read whenever another writer got there first.
func (s *service) mutate(ctx context.Context, op string, groupOrderID uuid.UUID, fn func(group *models.GroupOrder) error) (*models.GroupOrder, error) {
	var result *models.GroupOrder
	attempt := 0
	err := db.Retry(ctx, s.retry, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.metrics.GroupOrderRetry(op)
		}
		group, err := s.repo.FindByID(ctx, groupOrderID)
		if err != nil {
			return groupLoadError(err)
		}
		if err := fn(group); err != nil {
			return err
		}
		if err := s.repo.SaveVersioned(ctx, group); err != nil {
			return saveError(err)
		}
		result = group
		return nil
	})
	if err != nil {
		return nil, conflictOnExhaustion(err)
	}
	return result, nil
}

func requireOpen(group *models.GroupOrder) error {
	if group.Status != enums.GroupOrderStatusOpen {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "Group order is %s", group.Status).
			WithDetails(map[string]any{"group_order_id": group.ID, "status": group.Status})
	}
	return nil
}

// checkJoinable applies the join gates given the member count before the
// newcomer is counted.
func checkJoinable(group *models.GroupOrder, membersBefore int) error {
	if now().After(group.Deadline) {
		return pkgerrors.New(pkgerrors.CodeExpired, "Group order deadline has passed").
			WithDetails(map[string]any{"deadline": group.Deadline})
	}
	if membersBefore >= group.MaxMembers {
		return pkgerrors.Newf(pkgerrors.CodeMemberLimitReached, "Group order is full. Maximum members: %d", group.MaxMembers).
			WithDetails(map[string]any{"max_members": group.MaxMembers})
	}
	return nil
}

func checkClosable(group *models.GroupOrder) error {
	if len(group.MemberIDs) < group.MinMembers {
		return pkgerrors.Newf(pkgerrors.CodeInsufficientMembers,
			"Not enough members to close. Required: %d, current: %d", group.MinMembers, len(group.MemberIDs)).
			WithDetails(map[string]any{"required": group.MinMembers, "actual": len(group.MemberIDs)})
	}
	for _, p := range group.Products {
		if p.CurrentQuantity < p.MinOrderQuantity {
			return pkgerrors.Newf(pkgerrors.CodeMinimumQuantityNotMet,
				"Minimum order quantity not met for %s. Required: %d, current: %d", p.ProductName, p.MinOrderQuantity, p.CurrentQuantity).
				WithDetails(map[string]any{
					"product_id": p.ProductID,
					"required":   p.MinOrderQuantity,
					"actual":     p.CurrentQuantity,
				})
		}
	}
	return nil
}

// requireLeaderContribution keeps the leader a member: their total pledge may
// never drop to zero.
func requireLeaderContribution(group *models.GroupOrder) error {
	if group.Products.MemberTotal(group.LeaderID) == 0 {
		return pkgerrors.New(pkgerrors.CodeLeaderCannotLeave, "The group leader must keep at least one item in the group order")
	}
	return nil
}

func validateCreateInput(input CreateGroupOrderInput, at time.Time) error {
	if input.LeaderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(input.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if !input.Deadline.After(at) {
		return pkgerrors.New(pkgerrors.CodeValidation, "deadline must be in the future")
	}
	if input.MinMembers < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "min members must be at least 1")
	}
	if input.MaxMembers < input.MinMembers {
		return pkgerrors.New(pkgerrors.CodeValidation, "max members must not be below min members")
	}
	if len(input.Products) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one product required")
	}

	seen := make(map[uuid.UUID]bool, len(input.Products))
	leaderTotal := 0
	for _, p := range input.Products {
		if p.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if seen[p.ProductID] {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "product %s listed twice", p.ProductID)
		}
		seen[p.ProductID] = true
		if p.Quantity < 0 || p.TargetQuantity < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantities must not be negative")
		}
		if p.Quantity > pricing.MaxLineQuantity || p.TargetQuantity > pricing.MaxStock {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "product %s quantity is too large", p.ProductID).
				WithDetails(map[string]any{"max_quantity": pricing.MaxLineQuantity, "max_target": pricing.MaxStock})
		}
		leaderTotal += p.Quantity

		minimums := make(map[int]bool, len(p.DiscountTiers))
		for _, tier := range p.DiscountTiers {
			if !pricing.ValidTier(tier) {
				return pkgerrors.New(pkgerrors.CodeValidation, "discount tiers need a positive minimum and a percent between 0 and 100")
			}
			if minimums[tier.MinQuantity] {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "duplicate discount tier at quantity %d", tier.MinQuantity)
			}
			minimums[tier.MinQuantity] = true
		}
	}
	if leaderTotal == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "the leader must pledge at least one item")
	}
	return nil
}

func hasPositive(updates []QuantityUpdate) bool {
	for _, u := range updates {
		if u.Quantity > 0 {
			return true
		}
	}
	return false
}

func groupLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Group order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group order")
}

func saveError(err error) error {
	if errors.Is(err, db.ErrStaleWrite) || db.IsRetryable(err) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save group order")
}

// conflictOnExhaustion turns a write that kept losing races into the public
// conflict error.
func conflictOnExhaustion(err error) error {
	if errors.Is(err, db.ErrStaleWrite) || db.IsRetryable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "Group order was changed by someone else. Please try again")
	}
	return err
}
