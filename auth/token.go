package auth

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-sync"

// Claims carries the session identity inside the JWT.
type Claims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Color       string `json:"color,omitempty"`
	AvatarStyle string `json:"avatar_style,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session tokens with a shared HMAC key.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

func NewTokenIssuer(key []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, ttl: ttl}
}

// Issue creates a signed token for user.
func (i *TokenIssuer) Issue(user domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      user.ID,
		Username:    user.DisplayName,
		Color:       user.Color,
		AvatarStyle: user.AvatarStyle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.key)
}

// Parse validates signature and expiry, then returns the user of the token.
func (i *TokenIssuer) Parse(tokenString string) (domain.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrAuthorization, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrAuthorization, jwt.ErrTokenInvalidClaims)
	}
	return domain.User{
		ID:          claims.UserID,
		DisplayName: claims.Username,
		Color:       claims.Color,
		AvatarStyle: claims.AvatarStyle,
	}, nil
}
