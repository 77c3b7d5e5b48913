package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/store"
)

// Keys of the persisted session in durable storage.
const (
	KeyAuthToken    = "authToken"
	KeyUserID       = "userId"
	KeyUserRole     = "userRole"
	KeyFacilityID   = "facilityId"
	KeyFacilityName = "facilityName"
)

// PersistedKeys lists every key a session writes. Logout removes all of them.
var PersistedKeys = []string{KeyAuthToken, KeyUserID, KeyUserRole, KeyFacilityID, KeyFacilityName}

// ErrInvalidCredentials is returned by Login when the backend rejects the credentials.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Session is the signed-in operator.
type Session struct {
	UserID       backend.ID `json:"userId"`
	Role         Role       `json:"role"`
	FacilityID   backend.ID `json:"facilityId,omitempty"`
	FacilityName string     `json:"facilityName,omitempty"`
	Token        string     `json:"-"`
}

// HasFacility reports whether the session is scoped to a facility.
func (s Session) HasFacility() bool {
	return s.FacilityID != 0
}

// Credentials are the login form fields.
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Authenticator is the part of the backend auth API the store needs.
type Authenticator interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error)
	Signup(ctx context.Context, req backend.SignupRequest) error
}

// Store owns the current session and its durable copy.
type Store struct {
	kv   store.Store
	auth Authenticator
	now  func() time.Time

	mu       sync.RWMutex
	current  *Session
	loading  bool
	onLogin  []func(Session)
	onLogout []func()
}

// NewStore creates a session store. It reports Loading until Restore has run.
func NewStore(kv store.Store, auth Authenticator) *Store {
	return &Store{
		kv:      kv,
		auth:    auth,
		now:     time.Now,
		loading: true,
	}
}

// OnLogin registers fn to run after every successful login or restore.
func (s *Store) OnLogin(fn func(Session)) {
	s.mu.Lock()
	s.onLogin = append(s.onLogin, fn)
	s.mu.Unlock()
}

// OnLogout registers fn to run after every logout or expiry.
func (s *Store) OnLogout(fn func()) {
	s.mu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.mu.Unlock()
}

// Loading reports whether the persisted session has not been read yet.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Current returns a copy of the session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Authenticated reports whether a session exists.
func (s *Store) Authenticated() bool {
	_, ok := s.Current()
	return ok
}

// Token implements backend.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// IsAdmin reports whether the signed-in user is an administrator.
func (s *Store) IsAdmin() bool {
	sess, ok := s.Current()
	return ok && sess.Role == RoleAdmin
}

// IsFacility reports whether the signed-in user is a facility operator.
func (s *Store) IsFacility() bool {
	sess, ok := s.Current()
	return ok && sess.Role == RoleFacility
}

// Restore rebuilds the session from durable storage. A session needs both a
// token and a user id; a missing role is read as FACILITY. Tokens whose exp
// claim has passed are discarded together with the rest of the stored keys.
func (s *Store) Restore(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	values, err := s.kv.GetMany(ctx, PersistedKeys...)
	if err != nil {
		return fmt.Errorf("read persisted session: %w", err)
	}

	token := values[KeyAuthToken]
	rawUserID := values[KeyUserID]
	if token == "" || rawUserID == "" {
		return nil
	}

	if expired(token, s.now()) {
		log.Printf("Stored session token has expired; discarding it.")
		if err := s.kv.Delete(ctx, PersistedKeys...); err != nil {
			log.Printf("Failed to clear expired session: %v", err)
		}
		return nil
	}

	userID, err := backend.ParseID(rawUserID)
	if err != nil {
		log.Printf("Stored user id %q is invalid; discarding session.", rawUserID)
		if err := s.kv.Delete(ctx, PersistedKeys...); err != nil {
			log.Printf("Failed to clear invalid session: %v", err)
		}
		return nil
	}

	role := Role(values[KeyUserRole])
	if !role.Valid() {
		role = RoleFacility
	}

	sess := Session{
		UserID:       userID,
		Role:         role,
		FacilityName: values[KeyFacilityName],
		Token:        token,
	}
	if raw := values[KeyFacilityID]; raw != "" {
		if id, err := backend.ParseID(raw); err == nil {
			sess.FacilityID = id
		}
	}

	s.mu.Lock()
	s.current = &sess
	listeners := append([]func(Session){}, s.onLogin...)
	s.mu.Unlock()

	log.Printf("Restored session for user %d (%s)", sess.UserID, sess.Role)
	for _, fn := range listeners {
		fn(sess)
	}
	return nil
}

// Login authenticates against the backend and persists the new session. On
// failure the previous state is left as it was.
func (s *Store) Login(ctx context.Context, creds Credentials) (Session, error) {
	resp, err := s.auth.Login(ctx, backend.LoginRequest{
		Username: strings.TrimSpace(creds.Username),
		Password: creds.Password,
	})
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("login failed: %w", err)
	}

	role, ok := ParseRole(resp.Role)
	if !ok {
		role = RoleFacility
	}
	sess := Session{
		UserID:       resp.UserID,
		Role:         role,
		FacilityID:   resp.FacilityID,
		FacilityName: resp.FacilityName,
		Token:        resp.JWT,
	}

	s.persist(ctx, sess)

	s.mu.Lock()
	s.current = &sess
	listeners := append([]func(Session){}, s.onLogin...)
	s.mu.Unlock()

	log.Printf("User %d signed in as %s", sess.UserID, sess.Role)
	for _, fn := range listeners {
		fn(sess)
	}
	return sess, nil
}

// persist writes the session keys. Storage failures only cost the session
// its survival across restarts, so they are logged.
func (s *Store) persist(ctx context.Context, sess Session) {
	values := map[string]string{
		KeyAuthToken: sess.Token,
		KeyUserID:    sess.UserID.String(),
		KeyUserRole:  string(sess.Role),
	}
	var absent []string
	if sess.HasFacility() {
		values[KeyFacilityID] = sess.FacilityID.String()
	} else {
		absent = append(absent, KeyFacilityID)
	}
	if sess.FacilityName != "" {
		values[KeyFacilityName] = sess.FacilityName
	} else {
		absent = append(absent, KeyFacilityName)
	}

	if err := s.kv.SetMany(ctx, values); err != nil {
		log.Printf("Failed to persist session: %v", err)
	}
	if err := s.kv.Delete(ctx, absent...); err != nil {
		log.Printf("Failed to clear stale session keys: %v", err)
	}
}

// Signup registers a new account without signing in.
func (s *Store) Signup(ctx context.Context, req SignupRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.auth.Signup(ctx, req.BackendRequest())
}

// Logout clears the durable and in-memory session. It always notifies the
// logout listeners, even when no session existed.
func (s *Store) Logout(ctx context.Context) {
	if err := s.kv.Delete(ctx, PersistedKeys...); err != nil {
		log.Printf("Failed to clear persisted session: %v", err)
	}

	s.mu.Lock()
	s.current = nil
	listeners := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Expire ends the session after the backend rejected token. A rejection of a
// token that is no longer current is ignored.
func (s *Store) Expire(token string) {
	current := s.Token()
	if current == "" || current != token {
		return
	}
	log.Printf("Session token rejected by backend; signing out.")
	s.Logout(context.Background())
}

func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Opaque tokens are left for the backend to judge.
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
