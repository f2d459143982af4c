package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/api/responses"
	"github.com/angelmondragon/supplyhub-backend/api/validators"
	"github.com/angelmondragon/supplyhub-backend/internal/orders"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

// CreateOrder checks out the caller's cart. Multi-supplier carts come back
// as several orders.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
			return
		}
		buyerID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var input orders.CreateOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.BuyerID = buyerID

		created, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"orders": created})
	}
}

func GetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
			return
		}
		actorID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID, actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ListOrders lists the caller's orders; ?role=supplier switches from the
// buyer view to the supplier view.
func ListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
			return
		}
		actorID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseLimit(r, defaultListLimit, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		role, err := validators.ParseChoice(r, "role", "buyer", "buyer", "supplier")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var list []orders.OrderDTO
		if role == "supplier" {
			list, err = svc.ListSupplierOrders(r.Context(), actorID, limit)
		} else {
			list, err = svc.ListBuyerOrders(r.Context(), actorID, limit)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// orderAction is the shape shared by the single-order transitions.
type orderAction func(r *http.Request, orderID, actorID uuid.UUID) (*orders.OrderDTO, error)

func handleOrderAction(svc orders.Service, logg *logger.Logger, action orderAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "orders")
			return
		}
		actorID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := action(r.WithContext(ctx), orderID, actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleOrderAction(svc, logg, func(r *http.Request, orderID, actorID uuid.UUID) (*orders.OrderDTO, error) {
		return svc.CancelOrder(r.Context(), orderID, actorID)
	})
}

func PayOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleOrderAction(svc, logg, func(r *http.Request, orderID, actorID uuid.UUID) (*orders.OrderDTO, error) {
		return svc.ProcessOrderPayment(r.Context(), orderID, actorID)
	})
}

func UpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleOrderAction(svc, logg, func(r *http.Request, orderID, actorID uuid.UUID) (*orders.OrderDTO, error) {
		var input orders.UpdateStatusInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.UpdateOrderStatus(r.Context(), orderID, actorID, input.Status)
	})
}

func ConfirmDelivery(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleOrderAction(svc, logg, func(r *http.Request, orderID, actorID uuid.UUID) (*orders.OrderDTO, error) {
		return svc.ConfirmDelivery(r.Context(), orderID, actorID)
	})
}

func RefundOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleOrderAction(svc, logg, func(r *http.Request, orderID, actorID uuid.UUID) (*orders.OrderDTO, error) {
		var input orders.RefundInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.RefundOrder(r.Context(), orderID, actorID, input.Reason)
	})
}
