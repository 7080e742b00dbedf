package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/liyuan/shopsync/internal/errors"
	"github.com/liyuan/shopsync/internal/models"
	"github.com/liyuan/shopsync/internal/uuid"
)

// tokenIssuer identifies locally minted tokens. The signing secret lives
// on the client, so these tokens are an offline continuity mechanism, not
// a security boundary; the server never trusts them.
const tokenIssuer = "shopsync-local"

// TokenMinter issues and validates the self-contained tokens that keep a
// disconnected client signed in.
type TokenMinter struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

// NewTokenMinter creates a TokenMinter with the given secret and TTLs.
func NewTokenMinter(secret string, accessTTL, refreshTTL time.Duration) *TokenMinter {
	return &TokenMinter{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

type tokenClaims struct {
	Email       string           `json:"email,omitempty"`
	DisplayName string           `json:"name,omitempty"`
	Role        string           `json:"role,omitempty"`
	Kind        models.TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// MintAccess issues an access token bound to the user.
func (m *TokenMinter) MintAccess(user models.User) (string, models.TokenPayload, error) {
	now := m.now()
	payload := models.TokenPayload{
		Subject:     string(user.ID),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		Kind:        models.TokenKindAccess,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(m.accessTTL).Unix(),
		Issuer:      tokenIssuer,
	}
	token, err := m.sign(payload)
	return token, payload, err
}

// MintRefresh issues a refresh token carrying only the subject.
func (m *TokenMinter) MintRefresh(user models.User) (string, models.TokenPayload, error) {
	now := m.now()
	payload := models.TokenPayload{
		Subject:   string(user.ID),
		Kind:      models.TokenKindRefresh,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(m.refreshTTL).Unix(),
		Issuer:    tokenIssuer,
	}
	token, err := m.sign(payload)
	return token, payload, err
}

func (m *TokenMinter) sign(p models.TokenPayload) (string, error) {
	claims := tokenClaims{
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		Kind:        p.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    p.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Unix(p.IssuedAt, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(p.ExpiresAt, 0)),
			// A unique id makes every minted token distinct even when two
			// are issued within the same second, so rotation always
			// replaces the previous pair.
			ID: uuid.New(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, expiry and kind, returning the decoded
// payload. Any tampering with the encoded token fails validation.
func (m *TokenMinter) Validate(tokenString string, kind models.TokenKind) (models.TokenPayload, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return m.now() }))
	if err != nil || !token.Valid {
		return models.TokenPayload{}, apperrors.Wrap(apperrors.ErrInvalidToken, "token validation failed", err)
	}

	if claims.Kind != kind {
		return models.TokenPayload{}, apperrors.New(apperrors.ErrInvalidToken,
			fmt.Sprintf("expected %s token, got %s", kind, claims.Kind))
	}

	payload := models.TokenPayload{
		Subject:     claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		Kind:        claims.Kind,
		Issuer:      claims.Issuer,
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return payload, nil
}
