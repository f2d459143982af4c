// Package controllers adapts HTTP requests onto the marketplace services.
// Every handler resolves the caller from the auth context; services decide
// whether that caller may act.
package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplyhub-backend/api/middleware"
	"github.com/angelmondragon/supplyhub-backend/api/responses"
	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// requireActor writes a 401 and returns false when no caller is on the
// context.
func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	actor := middleware.ActorIDFromContext(r.Context())
	if actor == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return actor, true
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable"))
}

func unavailable(logg *logger.Logger, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceUnavailable(w, r, logg, name)
	}
}
