package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/api/middleware"
	"github.com/angelmondragon/supplyhub-backend/api/responses"
	"github.com/angelmondragon/supplyhub-backend/api/validators"
	"github.com/angelmondragon/supplyhub-backend/internal/grouporders"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

// CreateGroupOrder opens a group order led by the caller. The leader name
// falls back to the display name carried in the access token.
func CreateGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "group orders")
			return
		}
		leaderID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var input grouporders.CreateGroupOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.LeaderID = leaderID
		if strings.TrimSpace(input.LeaderName) == "" {
			input.LeaderName = middleware.ActorNameFromContext(r.Context())
		}

		group, err := svc.CreateGroupOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, group)
	}
}

func GetGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "group orders")
			return
		}
		groupID, err := validators.ParseUUIDParam(r, "groupOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		group, err := svc.GetGroupOrder(r.Context(), groupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, group)
	}
}

func ListOpenGroupOrders(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "group orders")
			return
		}
		limit, err := validators.ParseLimit(r, defaultListLimit, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		groups, err := svc.ListOpenGroupOrders(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, groups)
	}
}

type groupAction func(r *http.Request, groupID, actorID uuid.UUID) (*grouporders.GroupOrderDTO, error)

func handleGroupAction(svc grouporders.Service, logg *logger.Logger, action groupAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "group orders")
			return
		}
		actorID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		groupID, err := validators.ParseUUIDParam(r, "groupOrderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithGroupOrderID(ctx, groupID.String())
		}
		group, err := action(r.WithContext(ctx), groupID, actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, group)
	}
}

// UpdateGroupQuantities sets the caller's pledged quantities. A zero
// quantity withdraws the pledge for that product.
func UpdateGroupQuantities(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleGroupAction(svc, logg, func(r *http.Request, groupID, actorID uuid.UUID) (*grouporders.GroupOrderDTO, error) {
		var input grouporders.QuantitiesInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.UpdateProductQuantities(r.Context(), groupID, actorID, input.Updates)
	})
}

func JoinGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleGroupAction(svc, logg, func(r *http.Request, groupID, actorID uuid.UUID) (*grouporders.GroupOrderDTO, error) {
		var input grouporders.QuantitiesInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.JoinGroupOrder(r.Context(), groupID, actorID, input.Updates)
	})
}

func LeaveGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleGroupAction(svc, logg, func(r *http.Request, groupID, actorID uuid.UUID) (*grouporders.GroupOrderDTO, error) {
		return svc.LeaveGroupOrder(r.Context(), groupID, actorID)
	})
}

// CloseGroupOrder fans the pledges out into one order per member and
// supplier at the reached tier price.
func CloseGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleGroupAction(svc, logg, func(r *http.Request, groupID, actorID uuid.UUID) (*grouporders.GroupOrderDTO, error) {
		return svc.CloseGroupOrder(r.Context(), groupID, actorID)
	})
}

func CancelGroupOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return handleGroupAction(svc, logg, func(r *http.Request, groupID, actorID uuid.UUID) (*grouporders.GroupOrderDTO, error) {
		return svc.CancelGroupOrder(r.Context(), groupID, actorID)
	})
}
