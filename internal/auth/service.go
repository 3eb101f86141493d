package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"nexa/pkg/interfaces"
	"nexa/pkg/types"
)

const (
	defaultIssuer = "nexa"
	defaultLeeway = 30 * time.Second
)

var _ interfaces.CredentialVerifier = (*Service)(nil)

// Options configures token issuance and validation.
type Options struct {
	Secret  string
	Issuer  string
	TTL     time.Duration
	Leeway  time.Duration
	Revoker TokenRevoker
}

// Service issues, verifies and revokes HS256 access tokens. It is the one
// credential verifier shared by HTTP requests and realtime connections.
type Service struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	leeway  time.Duration
	revoker TokenRevoker
	users   interfaces.UserStore
	now     func() time.Time
}

// Claims are the registered JWT claims plus the role at issue time.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewService builds a token service over users.
func NewService(users interfaces.UserStore, opts Options) (*Service, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("token ttl must be greater than 0")
	}
	if strings.TrimSpace(opts.Issuer) == "" {
		opts.Issuer = defaultIssuer
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultLeeway
	}
	if opts.Revoker == nil {
		opts.Revoker = NewMemoryTokenRevoker()
	}

	return &Service{
		secret:  []byte(opts.Secret),
		issuer:  opts.Issuer,
		ttl:     opts.TTL,
		leeway:  opts.Leeway,
		revoker: opts.Revoker,
		users:   users,
		now:     time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for user and returns it with its expiry.
func (s *Service) Issue(user *types.User) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        randomHexID(12),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Login checks email and password and issues a token for the account.
func (s *Service) Login(ctx context.Context, email, password string) (string, *types.Identity, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, types.ErrNotFound) {
		// Spend the same work as a real comparison
		_ = CheckPassword(dummyHash(), password)
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, _, err := s.Issue(user)
	if err != nil {
		return "", nil, err
	}
	identity, err := s.identityFor(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return token, identity, nil
}

// Verify validates token and resolves the identity it names against storage.
func (s *Service) Verify(ctx context.Context, token string) (*types.Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: revocation check failed: %w", types.ErrAuthentication, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, types.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAuthentication, err)
	}
	return s.identityFor(ctx, user)
}

// Revoke invalidates token until it would have expired. Tokens that do not
// verify are already unusable and are ignored.
func (s *Service) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	return s.revoker.Revoke(ctx, claims.ID, ttl)
}

func (s *Service) identityFor(ctx context.Context, user *types.User) (*types.Identity, error) {
	enrolled, err := s.users.GetEnrolledCourseIDs(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAuthentication, err)
	}
	return types.NewIdentity(user, enrolled), nil
}

func (s *Service) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, fmt.Errorf("%w: subject and jti are required", ErrInvalidToken)
	}
	return claims, nil
}

// dummyHash is compared against when the email is unknown.
var dummyHash = sync.OnceValue(func() string {
	hash, _ := HashPassword(randomHexID(16))
	return hash
})

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
