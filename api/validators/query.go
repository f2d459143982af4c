package validators

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/supplyhub-backend/pkg/errors"
)

// ParseLimit reads ?limit. Missing means def; anything outside 1..max is a
// validation error rather than a silent clamp.
func ParseLimit(r *http.Request, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > max {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "limit must be between 1 and %d", max).
			WithDetails(map[string]any{"field": "limit", "max": max})
	}
	return limit, nil
}

// ParseChoice reads a case-insensitive query value that must be one of
// allowed. Missing means def.
func ParseChoice(r *http.Request, key, def string, allowed ...string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	if value == "" {
		return def, nil
	}
	if !slices.Contains(allowed, value) {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be one of %s", key, strings.Join(allowed, ", ")).
			WithDetails(map[string]any{"field": key, "allowed": allowed})
	}
	return value, nil
}

// ParseUUIDParam reads a chi URL parameter as a uuid.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}
