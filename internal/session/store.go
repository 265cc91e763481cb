// Package session holds the signed-in identity and its bearer token, keeps
// them in sync with persistent storage and announces every change on the
// event bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
	"github.com/FulloMyself/tasselgroupreact/internal/events"
	"github.com/FulloMyself/tasselgroupreact/internal/metrics"
	"github.com/FulloMyself/tasselgroupreact/pkg/logger"
)

// State is the authentication state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
)

// Reasons attached to session.changed events.
const (
	ReasonRestored           = "restored"
	ReasonRefreshed          = "refreshed"
	ReasonLogin              = "login"
	ReasonRegister           = "register"
	ReasonLogout             = "logout"
	ReasonProfileUpdated     = "profile_updated"
	ReasonRevalidationFailed = "revalidation_failed"
	ReasonExpired            = "expired"
)

// Backend is the subset of the API client the store needs.
type Backend interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error)
	Register(ctx context.Context, reg domain.Registration) (*domain.AuthResponse, error)
	Me(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.User, error)
}

// Config configures a Store.
type Config struct {
	Backend Backend
	Storage Storage
	Bus     *events.Bus
	Logger  *logger.Logger
	// Now is the clock used for token expiry. Defaults to time.Now.
	Now func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	backend Backend
	storage Storage
	bus     *events.Bus
	log     *logger.Logger
	now     func() time.Time

	// persist orders storage writes against teardown so a late write can
	// never resurrect a cleared session.
	persist sync.Mutex

	mu    sync.RWMutex
	state State
	token string
	user  *domain.User
	// gen changes on every transition so late async results can be dropped.
	gen uint64
}

// New creates a store in the unauthenticated state.
func New(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("session backend is required")
	}
	storage := cfg.Storage
	if storage == nil {
		storage = NewMemoryStorage()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("session")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend: cfg.Backend,
		storage: storage,
		bus:     cfg.Bus,
		log:     log,
		now:     now,
		state:   StateUnauthenticated,
	}, nil
}

// =============================================================================
// Accessors
// =============================================================================

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether a session is active.
func (s *Store) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// Token returns the bearer token, or "" when signed out. While a login or
// registration is in flight it keeps returning the previous session's token
// until the new one is committed.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateUnauthenticated {
		return ""
	}
	return s.token
}

// User returns a copy of the signed-in identity, or nil. Like Token, it
// reports the previous identity while a login is in flight.
func (s *Store) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateUnauthenticated || s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// =============================================================================
// Restore
// =============================================================================

// Restore adopts a persisted session immediately and revalidates it against
// the backend in the background. The returned channel is closed when
// revalidation has finished, or at once when there was nothing to revalidate.
func (s *Store) Restore(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	snap, err := s.storage.Load(ctx)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("discarding unreadable session")
		s.clearStorage(ctx)
		close(done)
		return done
	}
	if !snap.Valid() {
		if snap != nil {
			s.clearStorage(ctx)
		}
		close(done)
		return done
	}
	if tokenExpired(snap.Token, s.now()) {
		s.log.WithContext(ctx).Info("stored token has expired")
		metrics.RecordSessionInvalidation(ReasonExpired)
		s.clearStorage(ctx)
		close(done)
		return done
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.token = snap.Token
	s.user = snap.User
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	s.publish(ReasonRestored)

	go func() {
		defer close(done)
		s.revalidate(ctx, gen)
	}()
	return done
}

// revalidate confirms the restored identity. Only a rejected token or an
// unusable answer ends the session; an unreachable backend keeps it.
func (s *Store) revalidate(ctx context.Context, gen uint64) {
	user, err := s.backend.Me(ctx)
	if err != nil {
		switch apierrors.KindOf(err) {
		case apierrors.KindAuthentication, apierrors.KindUnexpectedResponse:
			s.invalidateGen(ctx, gen, ReasonRevalidationFailed)
		default:
			s.log.WithContext(ctx).WithError(err).Warn("session revalidation skipped")
		}
		return
	}

	if s.refresh(ctx, gen, user) {
		s.publish(ReasonRefreshed)
	}
}

// refresh stores a revalidated identity unless the session moved on. It
// reports whether the identity changed.
func (s *Store) refresh(ctx context.Context, gen uint64, user *domain.User) bool {
	s.persist.Lock()
	defer s.persist.Unlock()

	s.mu.Lock()
	if s.gen != gen || s.state != StateAuthenticated {
		s.mu.Unlock()
		return false
	}
	changed := s.user == nil || *s.user != *user
	s.user = user
	token := s.token
	s.mu.Unlock()

	if !changed {
		return false
	}
	if err := s.storage.Save(ctx, Snapshot{Token: token, User: user}); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("persist refreshed identity")
	}
	return true
}

// tokenExpired reports whether token is a JWT whose exp claim has passed.
// Opaque tokens and tokens without exp never expire here.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

// =============================================================================
// Login / Register
// =============================================================================

// Login signs in with credentials. On failure the previous session, if any,
// is kept.
func (s *Store) Login(ctx context.Context, creds domain.Credentials) (*domain.User, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, ReasonLogin, func() (*domain.AuthResponse, error) {
		resp, err := s.backend.Login(ctx, creds)
		if err != nil {
			return nil, refineAuthError(err, http.StatusUnauthorized, apierrors.KindInvalidCredentials)
		}
		return resp, nil
	})
}

// Register creates an account and signs it in.
func (s *Store) Register(ctx context.Context, reg domain.Registration) (*domain.User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return s.authenticate(ctx, ReasonRegister, func() (*domain.AuthResponse, error) {
		resp, err := s.backend.Register(ctx, reg)
		if err != nil {
			return nil, refineAuthError(err, http.StatusConflict, apierrors.KindDuplicateEmail)
		}
		return resp, nil
	})
}

func (s *Store) authenticate(ctx context.Context, reason string, call func() (*domain.AuthResponse, error)) (*domain.User, error) {
	s.mu.Lock()
	s.state = StateAuthenticating
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	// rollback returns to whatever the previous session still is. A forced
	// invalidation while in flight leaves nothing to return to.
	rollback := func() {
		s.mu.Lock()
		if s.gen == gen {
			if s.token != "" && s.user != nil {
				s.state = StateAuthenticated
			} else {
				s.state, s.token, s.user = StateUnauthenticated, "", nil
			}
			s.gen++
		}
		s.mu.Unlock()
	}

	resp, err := call()
	if err != nil {
		rollback()
		return nil, err
	}

	if err := s.commit(ctx, gen, resp, rollback); err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"user_id": resp.User.ID,
		"role":    string(resp.User.Role),
	}).Info("signed in")
	s.publish(reason)

	u := *resp.User
	return &u, nil
}

// commit persists and adopts resp unless the session changed since the
// sign-in started, e.g. the user logged out while it was in flight.
func (s *Store) commit(ctx context.Context, gen uint64, resp *domain.AuthResponse, rollback func()) error {
	s.persist.Lock()
	defer s.persist.Unlock()

	s.mu.RLock()
	superseded := s.gen != gen
	s.mu.RUnlock()
	if superseded {
		s.log.WithContext(ctx).Info("discarding sign-in that finished after the session changed")
		return apierrors.New(apierrors.KindAuthentication, "session changed while signing in")
	}

	if err := s.storage.Save(ctx, Snapshot{Token: resp.Token, User: resp.User}); err != nil {
		rollback()
		return &apierrors.Error{
			Kind:    apierrors.KindGeneric,
			Message: apierrors.UserMessage(apierrors.KindGeneric),
			Detail:  err.Error(),
			Err:     fmt.Errorf("persist session: %w", err),
		}
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.token = resp.Token
	s.user = resp.User
	s.gen++
	s.mu.Unlock()
	return nil
}

// refineAuthError relabels a rejection status as a session-specific kind.
func refineAuthError(err error, status int, kind apierrors.Kind) error {
	e := apierrors.Classify(err)
	if e.Status == status {
		return apierrors.Refine(err, kind)
	}
	return badRequestAsValidation(e)
}

// badRequestAsValidation turns a 400 into a validation error carrying the
// server's message.
func badRequestAsValidation(e *apierrors.Error) error {
	if e.Status != http.StatusBadRequest {
		return e
	}
	msg := e.Detail
	if msg == "" {
		msg = apierrors.UserMessage(apierrors.KindValidation)
	}
	return &apierrors.Error{Kind: apierrors.KindValidation, Status: e.Status, Message: msg, Detail: e.Detail, Err: e.Err}
}

// =============================================================================
// Logout / Invalidate
// =============================================================================

// Logout ends the session locally. It never fails and makes no network call.
func (s *Store) Logout(ctx context.Context) {
	s.end(ctx, ReasonLogout, false)
}

// Invalidate forces the session out, e.g. after the backend rejected the
// token. It does nothing when no session is active.
func (s *Store) Invalidate(ctx context.Context, reason string) {
	s.end(ctx, reason, true)
}

func (s *Store) invalidateGen(ctx context.Context, gen uint64, reason string) {
	s.mu.RLock()
	current := s.gen
	s.mu.RUnlock()
	if current != gen {
		return
	}
	s.end(ctx, reason, true)
}

func (s *Store) end(ctx context.Context, reason string, forced bool) {
	if !s.teardown(ctx, forced) {
		return
	}
	if forced {
		metrics.RecordSessionInvalidation(reason)
		s.log.WithContext(ctx).WithField("reason", reason).Warn("session invalidated")
	}
	s.publish(reason)
}

// teardown drops the session and its stored copy. It reports whether there
// was a session to drop.
func (s *Store) teardown(ctx context.Context, forced bool) bool {
	s.persist.Lock()
	defer s.persist.Unlock()

	s.mu.Lock()
	hadSession := s.token != "" && s.state != StateUnauthenticated
	switch {
	case forced && s.state == StateAuthenticating:
		// The previous token was rejected. Drop it but let the sign-in in
		// flight finish on its own.
		if !hadSession {
			s.mu.Unlock()
			return false
		}
		s.token, s.user = "", nil
	case forced && s.state != StateAuthenticated:
		s.mu.Unlock()
		return false
	default:
		s.state = StateUnauthenticated
		s.token = ""
		s.user = nil
		s.gen++
	}
	s.mu.Unlock()

	s.clearStorage(ctx)
	return hadSession
}

func (s *Store) clearStorage(ctx context.Context) {
	if err := s.storage.Clear(ctx); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("clear stored session")
	}
}

// =============================================================================
// Profile
// =============================================================================

// UpdateProfile changes the signed-in user's profile and persists the result.
func (s *Store) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.User, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	active := s.state == StateAuthenticated
	gen := s.gen
	s.mu.RUnlock()
	if !active {
		return nil, apierrors.New(apierrors.KindAuthentication, "no active session")
	}

	user, err := s.backend.UpdateProfile(ctx, patch)
	if err != nil {
		return nil, badRequestAsValidation(apierrors.Classify(err))
	}

	s.persist.Lock()
	s.mu.Lock()
	if s.gen != gen || s.state != StateAuthenticated {
		s.mu.Unlock()
		s.persist.Unlock()
		return nil, apierrors.New(apierrors.KindAuthentication, "session ended during profile update")
	}
	s.user = user
	token := s.token
	s.mu.Unlock()

	if err := s.storage.Save(ctx, Snapshot{Token: token, User: user}); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("persist updated profile")
	}
	s.persist.Unlock()
	s.publish(ReasonProfileUpdated)

	u := *user
	return &u, nil
}

func (s *Store) publish(reason string) {
	s.bus.Publish(events.Event{Type: events.EventSessionChanged, Reason: reason})
}

// errNotAuthenticated is matched by callers that need an identity.
var errNotAuthenticated = errors.New("not authenticated")

// RequireUser returns the signed-in identity or an authentication error.
func (s *Store) RequireUser() (*domain.User, error) {
	if u := s.User(); u != nil {
		return u, nil
	}
	return nil, &apierrors.Error{
		Kind:    apierrors.KindAuthentication,
		Message: "Please log in to continue.",
		Err:     errNotAuthenticated,
	}
}
