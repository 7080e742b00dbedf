package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liyuan/shopsync/internal/models"
)

func testUser() models.User {
	return models.User{
		ID:          "u-1",
		Email:       "ada@example.com",
		DisplayName: "Ada",
		Role:        "customer",
	}
}

func TestMintAndValidateAccessToken(t *testing.T) {
	m := NewTokenMinter("secret", 24*time.Hour, 7*24*time.Hour)

	token, payload, err := m.MintAccess(testUser())
	require.NoError(t, err)
	assert.Equal(t, models.TokenKindAccess, payload.Kind)

	got, err := m.Validate(token, models.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.Subject)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "customer", got.Role)
	assert.Equal(t, payload.ExpiresAt, got.ExpiresAt)
}

func TestTamperedTokenFailsValidation(t *testing.T) {
	m := NewTokenMinter("secret", 24*time.Hour, 7*24*time.Hour)

	token, _, err := m.MintAccess(testUser())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	// Flip one character of the payload segment.
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = m.Validate(tampered, models.TokenKindAccess)
	require.Error(t, err)
}

func TestExpiredTokenFailsValidation(t *testing.T) {
	m := NewTokenMinter("secret", time.Hour, 7*24*time.Hour)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	token, _, err := m.MintAccess(testUser())
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(30 * time.Minute) }
	_, err = m.Validate(token, models.TokenKindAccess)
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = m.Validate(token, models.TokenKindAccess)
	require.Error(t, err)
}

func TestTokenKindIsEnforced(t *testing.T) {
	m := NewTokenMinter("secret", time.Hour, 7*24*time.Hour)

	refresh, payload, err := m.MintRefresh(testUser())
	require.NoError(t, err)
	assert.Equal(t, models.TokenKindRefresh, payload.Kind)
	assert.Empty(t, payload.Email, "refresh tokens carry only the subject")

	_, err = m.Validate(refresh, models.TokenKindAccess)
	require.Error(t, err, "a refresh token must not pass as an access token")

	_, err = m.Validate(refresh, models.TokenKindRefresh)
	require.NoError(t, err)
}

func TestWrongSecretFailsValidation(t *testing.T) {
	m := NewTokenMinter("secret", time.Hour, time.Hour)
	other := NewTokenMinter("different", time.Hour, time.Hour)

	token, _, err := m.MintAccess(testUser())
	require.NoError(t, err)

	_, err = other.Validate(token, models.TokenKindAccess)
	require.Error(t, err)
}

func TestMintedTokensAreUnique(t *testing.T) {
	m := NewTokenMinter("secret", 24*time.Hour, 7*24*time.Hour)
	at := time.Now()
	m.now = func() time.Time { return at }

	// Identical subject, identical instant: the pair must still rotate.
	first, _, err := m.MintRefresh(testUser())
	require.NoError(t, err)
	second, _, err := m.MintRefresh(testUser())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = m.Validate(first, models.TokenKindRefresh)
	require.NoError(t, err)
	_, err = m.Validate(second, models.TokenKindRefresh)
	require.NoError(t, err)
}
