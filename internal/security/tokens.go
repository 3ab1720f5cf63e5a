package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"storefront/internal/apperror"
)

// AccessClaims is the payload of an access token. RefreshTokenID binds the
// token to the refresh token record created at login.
type AccessClaims struct {
	RefreshTokenID string `json:"rid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies short-lived HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

func (t *TokenIssuer) Issue(userID, refreshTokenID uuid.UUID) (string, error) {
	now := t.now()
	claims := AccessClaims{
		RefreshTokenID: refreshTokenID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", errors.New("failed to generate token")
	}
	return signed, nil
}

// Parse verifies signature and expiry and returns the subject and the bound
// refresh token id.
func (t *TokenIssuer) Parse(tokenString string) (userID, refreshTokenID uuid.UUID, err error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, uuid.Nil, apperror.Wrap(apperror.ErrUnauthorized, "Token expired", err)
		}
		return uuid.Nil, uuid.Nil, apperror.Wrap(apperror.ErrUnauthorized, "Invalid token", err)
	}

	userID, err = uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, uuid.Nil, apperror.Wrap(apperror.ErrUnauthorized, "Invalid token claims", err)
	}
	refreshTokenID, err = uuid.Parse(claims.RefreshTokenID)
	if err != nil {
		return uuid.Nil, uuid.Nil, apperror.Wrap(apperror.ErrUnauthorized, "Invalid token claims", err)
	}
	return userID, refreshTokenID, nil
}
