// Package models provides data model definitions for the shopsync core.
package models

import "time"

// Session is the single active client session. Exactly one exists at a
// time; it is replaced on refresh and deleted on sign-out.
type Session struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	IsValid      bool   `json:"is_valid"`
}

// ExpiresAtTime returns the ExpiresAt as time.Time.
func (s *Session) ExpiresAtTime() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// TokenKind distinguishes access from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenPayload is the decoded claim set of a locally minted token.
// Refresh tokens carry only Subject, Kind and the timestamps.
type TokenPayload struct {
	Subject     string    `json:"sub"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"name,omitempty"`
	Role        string    `json:"role,omitempty"`
	Kind        TokenKind `json:"kind"`
	IssuedAt    int64     `json:"iat"`
	ExpiresAt   int64     `json:"exp"`
	Issuer      string    `json:"iss,omitempty"`
}

// User is a locally registered account used by the offline auth simulator.
type User struct {
	ID           UUID   `db:"id" json:"id"`
	Email        string `db:"email" json:"email"`
	DisplayName  string `db:"display_name" json:"display_name"`
	Role         string `db:"role" json:"role"`
	PasswordHash string `db:"password_hash" json:"-"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
}

// TableName returns the collection name for User.
func (User) TableName() string {
	return "users"
}
