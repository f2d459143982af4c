package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload is what the identity provider asserts about a caller.
// The marketplace trusts it as-is; credentials are checked upstream.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	DisplayName string
	JTI         string
}

// AccessTokenClaims is the typed JWT body. UserID is the acting party for
// every buyer, supplier and group member operation.
type AccessTokenClaims struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}
