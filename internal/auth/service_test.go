package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]*types.User
	enrolled map[string][]string
	err      error
}

func newFakeUsers(users ...*types.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*types.User), enrolled: make(map[string][]string)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetUserByID(ctx context.Context, userID string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == types.NormalizeEmail(email) {
			return u, nil
		}
	}
	return nil, interfaces.ErrUserNotFound
}

func (f *fakeUsers) GetEnrolledCourseIDs(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrolled[userID], nil
}

func (f *fakeUsers) remove(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
}

func newTestService(t *testing.T, users interfaces.UserStore, revoker TokenRevoker) *Service {
	t.Helper()
	svc, err := NewService(users, Options{Secret: "test-secret", TTL: time.Hour, Revoker: revoker})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

var student = &types.User{ID: "student-1", FullName: "Sam Student", Email: "sam@example.com", Role: types.RoleStudent, AvatarURL: "/s.png"}

func TestService_IssueAndVerify(t *testing.T) {
	users := newFakeUsers(student)
	users.enrolled["student-1"] = []string{"course-1"}
	svc := newTestService(t, users, nil)

	token, expiresAt, err := svc.Issue(student)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("Expiry should be in the future: %v", expiresAt)
	}

	identity, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.ID != "student-1" || identity.FullName != "Sam Student" || identity.Role != types.RoleStudent {
		t.Errorf("Unexpected identity: %+v", identity)
	}
	if len(identity.EnrolledCourseIDs) != 1 || identity.EnrolledCourseIDs[0] != "course-1" {
		t.Errorf("Expected enrollment snapshot, got %v", identity.EnrolledCourseIDs)
	}
}

func TestService_VerifyFailures(t *testing.T) {
	users := newFakeUsers(student, &types.User{ID: "gone", Role: types.RoleStudent})
	svc := newTestService(t, users, nil)
	ctx := context.Background()

	valid, _, _ := svc.Issue(student)
	goneToken, _, _ := svc.Issue(&types.User{ID: "gone"})
	users.remove("gone")

	other, _ := NewService(users, Options{Secret: "other-secret", TTL: time.Hour})
	foreign, _, _ := other.Issue(student)

	expiredSvc := newTestService(t, users, nil)
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, _ := expiredSvc.Issue(student)

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "student-1",
		Issuer:    defaultIssuer,
		ID:        "x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"missing", "", ErrMissingToken},
		{"blank", "   ", ErrMissingToken},
		{"malformed", "not.a.jwt", ErrInvalidToken},
		{"wrong key", foreign, ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"alg none", unsigned, ErrInvalidToken},
		{"deleted user", goneToken, ErrUnknownUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := svc.Verify(ctx, tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, types.ErrAuthentication) {
				t.Errorf("Every verify failure should classify as authentication: %v", err)
			}
			if identity != nil {
				t.Errorf("No identity expected on failure, got %+v", identity)
			}
		})
	}

	if _, err := svc.Verify(ctx, valid); err != nil {
		t.Errorf("Valid token should still verify: %v", err)
	}
}

func TestService_RevokeMemory(t *testing.T) {
	svc := newTestService(t, newFakeUsers(student), NewMemoryTokenRevoker())
	ctx := context.Background()

	token, _, _ := svc.Issue(student)
	if err := svc.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := svc.Verify(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Expected ErrTokenRevoked, got %v", err)
	}

	// Another token for the same user is unaffected
	fresh, _, _ := svc.Issue(student)
	if _, err := svc.Verify(ctx, fresh); err != nil {
		t.Errorf("Fresh token should verify: %v", err)
	}

	if err := svc.Revoke(ctx, "garbage"); err != nil {
		t.Errorf("Revoking an invalid token should be a no-op, got %v", err)
	}
}

func TestService_RevokeRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	revoker := NewRedisTokenRevoker(mr.Addr(), "")
	t.Cleanup(func() { _ = revoker.Close() })

	svc := newTestService(t, newFakeUsers(student), revoker)
	ctx := context.Background()

	token, _, _ := svc.Issue(student)
	if err := svc.Revoke(ctx, token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := svc.Verify(ctx, token); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("Expected ErrTokenRevoked, got %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("Expected one revocation key, got %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl <= 0 || ttl > time.Hour {
		t.Errorf("Revocation should expire with the token, ttl = %v", ttl)
	}

	// Past the token's lifetime the entry is gone
	mr.FastForward(2 * time.Hour)
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("Revocation should have expired, keys = %v", keys)
	}
}

func TestService_RedisUnavailableFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	revoker := NewRedisTokenRevoker(mr.Addr(), "")
	t.Cleanup(func() { _ = revoker.Close() })
	svc := newTestService(t, newFakeUsers(student), revoker)

	token, _, _ := svc.Issue(student)
	mr.Close()

	if _, err := svc.Verify(context.Background(), token); !errors.Is(err, types.ErrAuthentication) {
		t.Errorf("Verify must fail when revocation cannot be checked, got %v", err)
	}
}

func TestMemoryTokenRevoker_Expiry(t *testing.T) {
	r := NewMemoryTokenRevoker()
	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	if err := r.Revoke(ctx, "a", time.Minute); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := r.Revoke(ctx, "b", 0); err != nil {
		t.Fatalf("Revoke with zero ttl failed: %v", err)
	}

	if revoked, _ := r.IsRevoked(ctx, "a"); !revoked {
		t.Error("a should be revoked")
	}
	if revoked, _ := r.IsRevoked(ctx, "b"); revoked {
		t.Error("Zero ttl should not record a revocation")
	}

	now = now.Add(2 * time.Minute)
	if revoked, _ := r.IsRevoked(ctx, "a"); revoked {
		t.Error("a should have expired")
	}
}

func TestService_Login(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	user := *student
	user.PasswordHash = hash
	svc := newTestService(t, newFakeUsers(&user), nil)
	ctx := context.Background()

	token, identity, err := svc.Login(ctx, "SAM@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if identity.ID != user.ID {
		t.Errorf("Unexpected identity: %+v", identity)
	}
	if _, err := svc.Verify(ctx, token); err != nil {
		t.Errorf("Login token should verify: %v", err)
	}

	if _, _, err := svc.Login(ctx, "sam@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestNewService_Validation(t *testing.T) {
	if _, err := NewService(newFakeUsers(), Options{TTL: time.Hour}); err == nil {
		t.Error("Expected error for empty secret")
	}
	if _, err := NewService(newFakeUsers(), Options{Secret: "s"}); err == nil {
		t.Error("Expected error for zero ttl")
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"none", func(r *http.Request) {}, ""},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"bearer lowercase", func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") }, "abc"},
		{"basic ignored", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, ""},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "jwt", Value: "from-cookie"}) }, "from-cookie"},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=from-query" }, "from-query"},
		{"header beats cookie", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer from-header")
			r.AddCookie(&http.Cookie{Name: "jwt", Value: "from-cookie"})
		}, "from-header"},
		{"cookie beats query", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "jwt", Value: "from-cookie"})
			r.URL.RawQuery = "token=from-query"
		}, "from-cookie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			if got := TokenFromRequest(r, "jwt"); got != tt.want {
				t.Errorf("TokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}
