package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/api/responses"
	"github.com/angelmondragon/supplyhub-backend/api/validators"
	"github.com/angelmondragon/supplyhub-backend/internal/ledger"
	"github.com/angelmondragon/supplyhub-backend/internal/orders"
	"github.com/angelmondragon/supplyhub-backend/internal/wallet"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

type amountOp func(ctx context.Context, userID uuid.UUID, input wallet.AmountInput) (*wallet.WalletDTO, error)

func GetWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet")
			return
		}
		userID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		dto, err := svc.GetWallet(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func TopUpWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "wallet")
	}
	return walletAmount(logg, svc.TopUp)
}

func WithdrawWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable(logg, "wallet")
	}
	return walletAmount(logg, svc.Withdraw)
}

func walletAmount(logg *logger.Logger, op amountOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var input wallet.AmountInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := op(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func ListWalletTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet")
			return
		}
		userID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseLimit(r, defaultListLimit, maxListLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txns, err := svc.ListTransactions(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txns)
	}
}

// ReconcileWallet recomputes the caller's balances from the transaction log.
func ReconcileWallet(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "ledger")
			return
		}
		userID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		rec, err := svc.Reconcile(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"reconciliation": rec,
			"balanced":       rec.Balanced(),
		})
	}
}

// GetEscrow is visible to the payer directly and to the order's supplier
// through the order's own access check.
func GetEscrow(walletSvc wallet.Service, orderSvc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if walletSvc == nil || orderSvc == nil {
			serviceUnavailable(w, r, logg, "wallet")
			return
		}
		actorID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrow, err := walletSvc.GetEscrow(r.Context(), escrowID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if escrow.PayerID != actorID {
			if _, err := orderSvc.GetOrder(r.Context(), escrow.OrderID, actorID); err != nil {
				if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
					err = pkgerrors.New(pkgerrors.CodeForbidden, "escrow not accessible")
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, escrow)
	}
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func DisputeEscrow(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "wallet")
			return
		}
		actorID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		escrowID, err := validators.ParseUUIDParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req disputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DisputeEscrow(r.Context(), escrowID, actorID, req.Reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrow, err := svc.GetEscrow(r.Context(), escrowID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, escrow)
	}
}
