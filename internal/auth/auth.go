package auth

import "github.com/golang-jwt/jwt/v5"

// Authenticator issues and validates the member token pair. Access and
// refresh tokens are signed with separate secrets so a leaked refresh
// secret cannot mint access tokens.
type Authenticator interface {
	// GenerateTokens returns an access token and a refresh token for the
	// member, in that order.
	GenerateTokens(userID int64, role string) (string, string, error)
	ValidateAccessToken(token string) (*jwt.Token, error)
	ValidateRefreshToken(token string) (*jwt.Token, error)
}
