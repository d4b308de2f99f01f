// Package refreshtokens persists opaque refresh tokens with their expiry.
package refreshtokens

import (
	"context"
	"time"
)

// Token is a stored refresh token.
type Token struct {
	Token   string
	UserID  string
	Expires time.Time
}

type Repository interface {
	Create(ctx context.Context, userID, token string, validity time.Duration) error
	Find(ctx context.Context, token string) (*Token, error)
	Delete(ctx context.Context, token string) error
}
