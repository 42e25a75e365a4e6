package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Certified reflects the profile-certification flag at issue time; features that
// gate on certification (calls, discovery visibility) re-check the directory when
// it matters, so a stale flag only costs one extra lookup.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Certified bool      `json:"certified"`
	TokenType TokenType `json:"token_type"`
}
