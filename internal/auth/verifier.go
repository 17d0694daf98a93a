package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"

	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/repositories"
)

// The three rejection reasons are distinct because clients react differently:
// expired triggers a re-login, invalid is a hard error, inactive shows
// account-locked messaging.
var (
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("token invalid")
	ErrAccountInactive = errors.New("account inactive")
)

// Identity is the authenticated user subset attached to a connection.
type Identity struct {
	UserID      int
	DisplayName string
}

// Verifier validates access tokens and resolves the account state.
type Verifier struct {
	secret []byte
	users  repositories.UserRepository
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret string, users repositories.UserRepository) *Verifier {
	return &Verifier{secret: []byte(secret), users: users}
}

// Verify checks the HS256 signature and expiry of the raw token, then the
// account state. Rejections map onto the three sentinel errors.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	if rawToken == "" {
		return Identity{}, ErrTokenInvalid
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID == 0 {
		return Identity{}, ErrTokenInvalid
	}

	user, err := v.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return Identity{}, ErrTokenInvalid
		}
		return Identity{}, fmt.Errorf("load user: %w", err)
	}
	if user.Status != models.UserActive {
		return Identity{}, ErrAccountInactive
	}

	return Identity{UserID: user.ID, DisplayName: user.DisplayName}, nil
}
