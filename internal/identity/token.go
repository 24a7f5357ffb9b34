package identity

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid user token")
	ErrEmptyKey     = errors.New("token signing key is empty")
)

// TokenIssuer signs per-queue user tokens. The subject is the anonymous user
// id, the audience is the queue id and the token dies with the queue.
type TokenIssuer struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(key, issuer string, now func() time.Time) (*TokenIssuer, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{key: []byte(key), issuer: issuer, now: now}, nil
}

func (t *TokenIssuer) Issue(queueID uuid.UUID, expiresAt time.Time) (string, uuid.UUID, error) {
	userID, err := uuid.NewRandom()
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{queueID.String()},
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("failed to sign user token: %w", err)
	}
	return signed, userID, nil
}

// Parse validates the token for the given queue and returns its user id.
func (t *TokenIssuer) Parse(raw string, queueID uuid.UUID) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(queueID.String()),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return userID, nil
}
