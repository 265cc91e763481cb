package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
	"github.com/FulloMyself/tasselgroupreact/internal/events"
	"github.com/FulloMyself/tasselgroupreact/pkg/logger"
	"github.com/FulloMyself/tasselgroupreact/pkg/testutil"
)

var thandi = &domain.User{ID: "u1", Name: "Thandi Mokoena", Email: "thandi@example.com", Role: domain.RoleCustomer}

type fakeBackend struct {
	login    func(domain.Credentials) (*domain.AuthResponse, error)
	register func(domain.Registration) (*domain.AuthResponse, error)
	me       func(context.Context) (*domain.User, error)
	profile  func(domain.ProfilePatch) (*domain.User, error)
}

func (f *fakeBackend) Login(_ context.Context, c domain.Credentials) (*domain.AuthResponse, error) {
	return f.login(c)
}

func (f *fakeBackend) Register(_ context.Context, r domain.Registration) (*domain.AuthResponse, error) {
	return f.register(r)
}

func (f *fakeBackend) Me(ctx context.Context) (*domain.User, error) {
	return f.me(ctx)
}

func (f *fakeBackend) UpdateProfile(_ context.Context, p domain.ProfilePatch) (*domain.User, error) {
	return f.profile(p)
}

func statusError(kind apierrors.Kind, status int, detail string) error {
	e := apierrors.New(kind, detail)
	e.Status = status
	return e
}

func newTestStore(t *testing.T, backend *fakeBackend, storage Storage) (*Store, *testutil.EventRecorder) {
	t.Helper()
	bus := events.NewBus()
	rec := testutil.RecordEvents(t, bus)
	s, err := New(Config{
		Backend: backend,
		Storage: storage,
		Bus:     bus,
		Logger:  logger.NewDiscard("session"),
	})
	require.NoError(t, err)
	return s, rec
}

// =============================================================================
// Login / Register
// =============================================================================

func TestLogin_PersistsTokenAndUser(t *testing.T) {
	storage := NewMemoryStorage()
	s, rec := newTestStore(t, &fakeBackend{
		login: func(domain.Credentials) (*domain.AuthResponse, error) {
			return &domain.AuthResponse{Token: "tok", User: thandi}, nil
		},
	}, storage)

	user, err := s.Login(context.Background(), domain.Credentials{Email: thandi.Email, Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, thandi.ID, user.ID)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "tok", s.Token())

	snap, err := storage.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "tok", snap.Token)
	assert.Equal(t, *thandi, *snap.User)
	assert.Equal(t, []string{ReasonLogin}, rec.Reasons())
}

func TestLogin_InvalidCredentials(t *testing.T) {
	storage := NewMemoryStorage()
	s, rec := newTestStore(t, &fakeBackend{
		login: func(domain.Credentials) (*domain.AuthResponse, error) {
			return nil, statusError(apierrors.KindAuthentication, 401, "Invalid credentials")
		},
	}, storage)

	_, err := s.Login(context.Background(), domain.Credentials{Email: thandi.Email, Password: "wrong-pw"})
	assert.True(t, apierrors.Is(err, apierrors.KindInvalidCredentials), "err = %v", err)
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Empty(t, s.Token())

	snap, err := storage.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Empty(t, rec.Reasons())
}

func TestLogin_FailureKeepsPreviousSession(t *testing.T) {
	calls := 0
	s, _ := newTestStore(t, &fakeBackend{
		login: func(domain.Credentials) (*domain.AuthResponse, error) {
			calls++
			if calls == 1 {
				return &domain.AuthResponse{Token: "first", User: thandi}, nil
			}
			return nil, statusError(apierrors.KindConnectivity, 0, "dial tcp: refused")
		},
	}, nil)
	ctx := context.Background()
	creds := domain.Credentials{Email: thandi.Email, Password: "secret1"}

	_, err := s.Login(ctx, creds)
	require.NoError(t, err)
	_, err = s.Login(ctx, creds)
	assert.True(t, apierrors.Is(err, apierrors.KindConnectivity))
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "first", s.Token())
}

// blockingLogin returns a login func that signals entered and then waits
// for release to decide its result.
func blockingLogin(entered chan<- struct{}, release <-chan error, token string) func(domain.Credentials) (*domain.AuthResponse, error) {
	return func(domain.Credentials) (*domain.AuthResponse, error) {
		entered <- struct{}{}
		if err := <-release; err != nil {
			return nil, err
		}
		return &domain.AuthResponse{Token: token, User: thandi}, nil
	}
}

func TestLogin_LogoutWhileInFlightWins(t *testing.T) {
	entered, release := make(chan struct{}), make(chan error)
	storage := NewMemoryStorage()
	s, rec := newTestStore(t, &fakeBackend{login: blockingLogin(entered, release, "late")}, storage)
	ctx := context.Background()

	type result struct {
		user *domain.User
		err  error
	}
	done := make(chan result, 1)
	go func() {
		u, err := s.Login(ctx, domain.Credentials{Email: thandi.Email, Password: "secret1"})
		done <- result{u, err}
	}()

	<-entered
	assert.Equal(t, StateAuthenticating, s.State())
	s.Logout(ctx)
	assert.Equal(t, StateUnauthenticated, s.State())
	release <- nil

	res := <-done
	assert.Nil(t, res.user)
	assert.True(t, apierrors.Is(res.err, apierrors.KindAuthentication), "err = %v", res.err)
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Empty(t, s.Token())

	snap, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Empty(t, rec.Reasons())
}

func TestLogin_InFlightKeepsPreviousTokenUntilInvalidated(t *testing.T) {
	entered, release := make(chan struct{}), make(chan error)
	calls := 0
	storage := NewMemoryStorage()
	s, rec := newTestStore(t, &fakeBackend{
		login: func(c domain.Credentials) (*domain.AuthResponse, error) {
			calls++
			if calls == 1 {
				return &domain.AuthResponse{Token: "first", User: thandi}, nil
			}
			return blockingLogin(entered, release, "second")(c)
		},
	}, storage)
	ctx := context.Background()
	creds := domain.Credentials{Email: thandi.Email, Password: "secret1"}

	_, err := s.Login(ctx, creds)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Login(ctx, creds)
		done <- err
	}()

	<-entered
	assert.Equal(t, "first", s.Token())
	require.NotNil(t, s.User())

	// Another call finds the previous token rejected.
	s.Invalidate(ctx, "unauthorized")
	assert.Empty(t, s.Token())
	assert.Equal(t, StateAuthenticating, s.State())

	release <- statusError(apierrors.KindConnectivity, 0, "dial tcp: refused")
	assert.True(t, apierrors.Is(<-done, apierrors.KindConnectivity))

	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Empty(t, s.Token())
	snap, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, []string{ReasonLogin, "unauthorized"}, rec.Reasons())
}

func TestLogin_InFlightSucceedsAfterPreviousTokenRejected(t *testing.T) {
	entered, release := make(chan struct{}), make(chan error)
	storage := seeded(t, "stale")
	s, _ := newTestStore(t, &fakeBackend{
		login: blockingLogin(entered, release, "fresh"),
		me:    func(context.Context) (*domain.User, error) { return thandi, nil },
	}, storage)
	ctx := context.Background()
	<-s.Restore(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := s.Login(ctx, domain.Credentials{Email: thandi.Email, Password: "secret1"})
		done <- err
	}()

	<-entered
	s.Invalidate(ctx, "unauthorized")
	release <- nil
	require.NoError(t, <-done)

	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "fresh", s.Token())
	snap, err := storage.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "fresh", snap.Token)
}

func TestLogin_ValidatesLocally(t *testing.T) {
	s, _ := newTestStore(t, &fakeBackend{
		login: func(domain.Credentials) (*domain.AuthResponse, error) {
			t.Fatal("backend must not be called")
			return nil, nil
		},
	}, nil)

	_, err := s.Login(context.Background(), domain.Credentials{Email: "", Password: ""})
	assert.True(t, apierrors.Is(err, apierrors.KindValidation))
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    apierrors.Kind
		message string
	}{
		{"duplicate", statusError(apierrors.KindGeneric, 409, "User already exists"), apierrors.KindDuplicateEmail, apierrors.UserMessage(apierrors.KindDuplicateEmail)},
		{"bad request", statusError(apierrors.KindGeneric, 400, "Phone is invalid"), apierrors.KindValidation, "Phone is invalid"},
		{"server", statusError(apierrors.KindServer, 500, "boom"), apierrors.KindServer, apierrors.UserMessage(apierrors.KindServer)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t, &fakeBackend{
				register: func(domain.Registration) (*domain.AuthResponse, error) { return nil, tt.err },
			}, nil)

			_, err := s.Register(context.Background(), domain.Registration{
				Name: "Thandi", Email: thandi.Email, Password: "secret1",
			})
			var e *apierrors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.want, e.Kind)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, StateUnauthenticated, s.State())
		})
	}
}

// =============================================================================
// Logout / Invalidate
// =============================================================================

func TestLogout_ClearsEverything(t *testing.T) {
	storage := NewMemoryStorage()
	s, rec := newTestStore(t, &fakeBackend{
		login: func(domain.Credentials) (*domain.AuthResponse, error) {
			return &domain.AuthResponse{Token: "tok", User: thandi}, nil
		},
	}, storage)
	ctx := context.Background()

	_, err := s.Login(ctx, domain.Credentials{Email: thandi.Email, Password: "secret1"})
	require.NoError(t, err)

	s.Logout(ctx)
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, s.User())
	assert.Empty(t, s.Token())
	snap, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	// Logging out twice is harmless and silent.
	s.Logout(ctx)
	assert.Equal(t, []string{ReasonLogin, ReasonLogout}, rec.Reasons())
}

func TestInvalidate_OnlyWhenActive(t *testing.T) {
	s, rec := newTestStore(t, &fakeBackend{
		login: func(domain.Credentials) (*domain.AuthResponse, error) {
			return &domain.AuthResponse{Token: "tok", User: thandi}, nil
		},
	}, nil)
	ctx := context.Background()

	s.Invalidate(ctx, "unauthorized")
	assert.Empty(t, rec.Reasons())

	_, err := s.Login(ctx, domain.Credentials{Email: thandi.Email, Password: "secret1"})
	require.NoError(t, err)
	s.Invalidate(ctx, "unauthorized")
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Equal(t, []string{ReasonLogin, "unauthorized"}, rec.Reasons())
}

// =============================================================================
// Restore
// =============================================================================

func seeded(t *testing.T, token string) *MemoryStorage {
	t.Helper()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(context.Background(), Snapshot{Token: token, User: thandi}))
	return storage
}

func TestRestore_OptimisticThenConfirmed(t *testing.T) {
	release := make(chan struct{})
	renamed := *thandi
	renamed.Name = "Thandi M."
	storage := seeded(t, testutil.SignedToken(t, "u1", time.Now().Add(time.Hour)))
	s, rec := newTestStore(t, &fakeBackend{
		me: func(context.Context) (*domain.User, error) {
			<-release
			return &renamed, nil
		},
	}, storage)

	done := s.Restore(context.Background())
	assert.Equal(t, StateAuthenticated, s.State(), "restore must be optimistic")
	assert.Equal(t, thandi.Name, s.User().Name)

	close(release)
	<-done
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "Thandi M.", s.User().Name)

	snap, err := storage.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Thandi M.", snap.User.Name)
	assert.Equal(t, []string{ReasonRestored, ReasonRefreshed}, rec.Reasons())
}

func TestRestore_RejectedTokenLogsOut(t *testing.T) {
	storage := seeded(t, "opaque-token")
	s, rec := newTestStore(t, &fakeBackend{
		me: func(context.Context) (*domain.User, error) {
			return nil, statusError(apierrors.KindAuthentication, 401, "jwt expired")
		},
	}, storage)

	<-s.Restore(context.Background())
	assert.Equal(t, StateUnauthenticated, s.State())
	snap, err := storage.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, []string{ReasonRestored, ReasonRevalidationFailed}, rec.Reasons())
}

func TestRestore_UnreachableBackendKeepsSession(t *testing.T) {
	s, _ := newTestStore(t, &fakeBackend{
		me: func(context.Context) (*domain.User, error) {
			return nil, statusError(apierrors.KindConnectivity, 0, "connection refused")
		},
	}, seeded(t, "opaque-token"))

	<-s.Restore(context.Background())
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "opaque-token", s.Token())
}

func TestRestore_ExpiredJWTDiscardedWithoutNetwork(t *testing.T) {
	storage := seeded(t, testutil.SignedToken(t, "u1", time.Now().Add(-time.Minute)))
	s, rec := newTestStore(t, &fakeBackend{
		me: func(context.Context) (*domain.User, error) {
			t.Fatal("expired token must not be revalidated")
			return nil, nil
		},
	}, storage)

	<-s.Restore(context.Background())
	assert.Equal(t, StateUnauthenticated, s.State())
	snap, err := storage.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Empty(t, rec.Reasons())
}

func TestRestore_PartialStorageCleared(t *testing.T) {
	storage := NewMemoryStorage()
	storage.Set(KeyToken, "orphan")
	s, _ := newTestStore(t, &fakeBackend{}, storage)

	<-s.Restore(context.Background())
	assert.Equal(t, StateUnauthenticated, s.State())
	storage.mu.Lock()
	assert.Empty(t, storage.values)
	storage.mu.Unlock()
}

func TestRestore_NothingStored(t *testing.T) {
	s, rec := newTestStore(t, &fakeBackend{}, nil)
	<-s.Restore(context.Background())
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Empty(t, rec.Reasons())
}

// =============================================================================
// Profile
// =============================================================================

func TestUpdateProfile(t *testing.T) {
	storage := seeded(t, "tok")
	phone := "+27 82 555 0101"
	s, rec := newTestStore(t, &fakeBackend{
		me: func(context.Context) (*domain.User, error) { return thandi, nil },
		profile: func(p domain.ProfilePatch) (*domain.User, error) {
			u := *thandi
			u.Phone = *p.Phone
			return &u, nil
		},
	}, storage)
	ctx := context.Background()
	<-s.Restore(ctx)

	user, err := s.UpdateProfile(ctx, domain.ProfilePatch{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, phone, user.Phone)
	assert.Equal(t, phone, s.User().Phone)

	snap, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, phone, snap.User.Phone)
	assert.Equal(t, []string{ReasonRestored, ReasonProfileUpdated}, rec.Reasons())
}

func TestUpdateProfile_RequiresSession(t *testing.T) {
	name := "New Name"
	s, _ := newTestStore(t, &fakeBackend{}, nil)
	_, err := s.UpdateProfile(context.Background(), domain.ProfilePatch{Name: &name})
	assert.True(t, apierrors.Is(err, apierrors.KindAuthentication))

	_, err = s.RequireUser()
	assert.True(t, apierrors.Is(err, apierrors.KindAuthentication))
}

// =============================================================================
// Storage
// =============================================================================

func TestFileStorage_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "session.json")
	fs := NewFileStorage(path)
	ctx := context.Background()

	snap, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, fs.Save(ctx, Snapshot{Token: "tok", User: thandi}))
	snap, err = fs.Load(ctx)
	require.NoError(t, err)
	require.True(t, snap.Valid())
	assert.Equal(t, "tok", snap.Token)
	assert.Equal(t, thandi.Email, snap.User.Email)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	require.NoError(t, fs.Clear(ctx))
	require.NoError(t, fs.Clear(ctx))
	snap, err = fs.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFileStorage_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStorage(path).Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}
