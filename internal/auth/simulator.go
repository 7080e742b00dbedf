// Package auth provides the offline session simulator: self-contained
// bearer/refresh tokens over a locally stored user table so the client
// keeps an authenticated session while disconnected. This is explicitly
// not server-validated authentication.
package auth

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liyuan/shopsync/internal/crypto"
	apperrors "github.com/liyuan/shopsync/internal/errors"
	"github.com/liyuan/shopsync/internal/models"
	"github.com/liyuan/shopsync/internal/store"
	"github.com/liyuan/shopsync/internal/uuid"
)

const (
	usersCollection   = "users"
	sessionCollection = "session"
	sessionKey        = "current"
)

// Simulator manages the single active client session:
// none -> active on sign-in/sign-up, same-state token replacement on
// refresh, none on sign-out or unrecoverable refresh failure.
type Simulator struct {
	store  *store.Store
	minter *TokenMinter
	log    *logrus.Logger

	now func() time.Time
}

// NewSimulator creates a Simulator persisting sessions through the store.
func NewSimulator(s *store.Store, minter *TokenMinter, log *logrus.Logger) *Simulator {
	return &Simulator{store: s, minter: minter, log: log, now: time.Now}
}

// SignUpRequest carries the local registration data.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUp registers a local user and signs them in.
func (s *Simulator) SignUp(req SignUpRequest) (models.Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return models.Session{}, apperrors.New(apperrors.ErrValidation, "email is required")
	}
	if _, ok := s.findUserByEmail(email); ok {
		return models.Session{}, apperrors.New(apperrors.ErrDuplicate, "email already registered")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return models.Session{}, apperrors.Wrap(apperrors.ErrValidation, "invalid password", err)
	}

	user := models.User{
		ID:           models.UUID(uuid.New()),
		Email:        email,
		DisplayName:  req.DisplayName,
		Role:         "customer",
		PasswordHash: hash,
		CreatedAt:    s.now().Unix(),
	}
	rec, err := userRecord(user)
	if err != nil {
		return models.Session{}, apperrors.Wrap(apperrors.ErrInternal, "failed to encode user", err)
	}
	if err := s.store.Put(usersCollection, rec); err != nil {
		return models.Session{}, apperrors.Wrap(apperrors.ErrStorage, "failed to persist user", err)
	}

	return s.establishSession(user)
}

// SignIn validates credentials against the local user table and starts a
// session.
func (s *Simulator) SignIn(email, password string) (models.Session, error) {
	user, ok := s.findUserByEmail(normalizeEmail(email))
	if !ok {
		return models.Session{}, apperrors.New(apperrors.ErrNotFound, "no account for email")
	}
	if !CheckPassword(user.PasswordHash, password) {
		return models.Session{}, apperrors.New(apperrors.ErrInvalidCredentials, "invalid email or password")
	}
	return s.establishSession(user)
}

// SignOut tears the session down. Signing out with no session is a no-op.
func (s *Simulator) SignOut() error {
	return s.store.Delete(sessionCollection, sessionKey)
}

// CurrentSession returns the active session, refreshing an expired access
// token transparently. If both tokens are unusable the session is torn
// down and absent is returned.
func (s *Simulator) CurrentSession() (models.Session, bool) {
	rec, ok := s.store.Get(sessionCollection, sessionKey)
	if !ok {
		return models.Session{}, false
	}
	session, err := s.openSession(rec)
	if err != nil {
		s.log.WithError(err).Warn("stored session is unreadable, signing out")
		s.SignOut()
		return models.Session{}, false
	}

	if _, err := s.minter.Validate(session.AccessToken, models.TokenKindAccess); err == nil {
		return session, true
	}

	refreshed, err := s.Refresh(session.RefreshToken)
	if err != nil {
		return models.Session{}, false
	}
	return refreshed, true
}

// Refresh validates the refresh token and mints a fresh access+refresh
// pair bound to the same subject. On any failure the session is signed
// out entirely; there is no partial state.
func (s *Simulator) Refresh(refreshToken string) (models.Session, error) {
	payload, err := s.minter.Validate(refreshToken, models.TokenKindRefresh)
	if err != nil {
		s.SignOut()
		return models.Session{}, apperrors.Wrap(apperrors.ErrAuthExpired, "refresh token invalid", err)
	}

	rec, ok := s.store.Get(usersCollection, payload.Subject)
	if !ok {
		s.SignOut()
		return models.Session{}, apperrors.New(apperrors.ErrAuthExpired, "subject no longer exists")
	}
	user, err := decodeUser(rec)
	if err != nil {
		s.SignOut()
		return models.Session{}, apperrors.Wrap(apperrors.ErrInternal, "failed to decode user", err)
	}

	return s.establishSession(user)
}

// establishSession mints a token pair and persists the session record,
// replacing any previous one.
func (s *Simulator) establishSession(user models.User) (models.Session, error) {
	access, accessPayload, err := s.minter.MintAccess(user)
	if err != nil {
		return models.Session{}, apperrors.Wrap(apperrors.ErrInternal, "failed to mint access token", err)
	}
	refresh, _, err := s.minter.MintRefresh(user)
	if err != nil {
		return models.Session{}, apperrors.Wrap(apperrors.ErrInternal, "failed to mint refresh token", err)
	}

	session := models.Session{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessPayload.ExpiresAt,
		IsValid:      true,
	}
	rec, err := s.sealSession(session)
	if err != nil {
		return models.Session{}, apperrors.Wrap(apperrors.ErrInternal, "failed to encode session", err)
	}
	if err := s.store.Put(sessionCollection, rec); err != nil {
		return models.Session{}, apperrors.Wrap(apperrors.ErrStorage, "failed to persist session", err)
	}

	s.log.WithField("user", user.Email).Info("session established")
	return session, nil
}

// sealedSession is the at-rest form of the session record. Tokens never
// touch the database in the clear.
type sealedSession struct {
	Blob string `json:"blob"`
}

func (s *Simulator) sealSession(session models.Session) (models.Record, error) {
	plain, err := json.Marshal(session)
	if err != nil {
		return models.Record{}, err
	}
	blob, err := crypto.Seal(plain, s.minter.secret)
	if err != nil {
		return models.Record{}, err
	}
	return models.NewRecord(sessionKey, sealedSession{Blob: blob})
}

func (s *Simulator) openSession(rec models.Record) (models.Session, error) {
	var sealed sealedSession
	if err := rec.Decode(&sealed); err != nil {
		return models.Session{}, err
	}
	plain, err := crypto.Open(sealed.Blob, s.minter.secret)
	if err != nil {
		return models.Session{}, err
	}
	var session models.Session
	if err := json.Unmarshal(plain, &session); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// findUserByEmail resolves a user by exact (case-insensitive) email. The
// email index is substring-based, so hits are filtered for equality.
func (s *Simulator) findUserByEmail(email string) (models.User, bool) {
	if email == "" {
		return models.User{}, false
	}
	for _, rec := range s.store.SearchByIndex(usersCollection, "email", email) {
		user, err := decodeUser(rec)
		if err != nil {
			continue
		}
		if normalizeEmail(user.Email) == email {
			return user, true
		}
	}
	return models.User{}, false
}

// storedUser is the at-rest form of a user record. The password hash
// lives here and nowhere else; models.User keeps it out of every other
// serialized surface.
type storedUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

func userRecord(user models.User) (models.Record, error) {
	return models.NewRecord(string(user.ID), storedUser{User: user, PasswordHash: user.PasswordHash})
}

func decodeUser(rec models.Record) (models.User, error) {
	var stored storedUser
	if err := rec.Decode(&stored); err != nil {
		return models.User{}, err
	}
	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
