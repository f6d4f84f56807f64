package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/xerrors"
)

const (
	DefaultTTL = 24 * time.Hour

	// MinSecretLen is the shortest HS256 secret NewManager accepts.
	MinSecretLen = 32

	// MsgInvalidToken is the only message callers see for any 401. A missing
	// header and a forged token are indistinguishable from outside.
	MsgInvalidToken = "Invalid or expired token"
)

// failure reasons, used as the auth_failures_total label
const (
	ReasonMissing   = "missing_token"
	ReasonMalformed = "malformed_header"
	ReasonExpired   = "expired_token"
	ReasonInvalid   = "invalid_token"
	ReasonForbidden = "forbidden"
)

var (
	ErrMissingToken   = errors.New("no bearer token")
	ErrMalformedToken = errors.New("malformed authorization header")
	ErrExpiredToken   = errors.New("token expired")
	ErrInvalidToken   = errors.New("invalid token")
)

// Identity is who the token is for.
type Identity struct {
	UserID   string
	Username string
	IsAdmin  bool
}

// Profile is the display snapshot embedded in the token. It is only as fresh
// as the last Issue call for the user.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	AvatarURL string
}

type Claims struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"isAdmin"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Username, IsAdmin: c.IsAdmin}
}

func (c *Claims) Profile() Profile {
	return Profile{
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Phone:     c.Phone,
		AvatarURL: c.AvatarURL,
	}
}

type Options struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Clock  func() time.Time

	// OnFailure is called with one of the Reason* constants whenever a
	// guard rejects a request.
	OnFailure func(reason string)
}

// Manager signs and verifies HS256 tokens. It holds no per-user state and is
// safe for concurrent use.
type Manager struct {
	secret    []byte
	ttl       time.Duration
	issuer    string
	now       func() time.Time
	onFailure func(string)
	parser    *jwt.Parser
}

func NewManager(opts Options) (*Manager, error) {
	if len(opts.Secret) < MinSecretLen {
		return nil, xerrors.Newf("auth: secret must be at least %d bytes, got %d", MinSecretLen, len(opts.Secret))
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.OnFailure == nil {
		opts.OnFailure = func(string) {}
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(opts.Clock),
	}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}

	secret := make([]byte, len(opts.Secret))
	copy(secret, opts.Secret)

	return &Manager{
		secret:    secret,
		ttl:       opts.TTL,
		issuer:    opts.Issuer,
		now:       opts.Clock,
		onFailure: opts.OnFailure,
		parser:    jwt.NewParser(popts...),
	}, nil
}

// Issue signs a token for id carrying a snapshot of p. It returns the token
// and its expiry.
func (m *Manager) Issue(id Identity, p Profile) (string, time.Time, error) {
	if id.UserID == "" {
		return "", time.Time{}, xerrors.New("auth: issue: empty user id")
	}
	now := m.now()
	exp := now.Add(m.ttl)

	claims := &Claims{
		UserID:    id.UserID,
		Username:  id.Username,
		IsAdmin:   id.IsAdmin,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
		AvatarURL: p.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, xerrors.Wrap(err, "auth: sign token")
	}
	return signed, exp, nil
}

// VerifyToken returns the claims of a valid token. Errors wrap ErrExpiredToken
// or ErrInvalidToken; no claims are returned alongside an error.
func (m *Manager) VerifyToken(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(token, claims, m.key)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: subject does not match user id", ErrInvalidToken)
	}
	return claims, nil
}

func (m *Manager) key(_ *jwt.Token) (any, error) {
	return m.secret, nil
}

// Verify reads the bearer token from r. Every failure is an
// apierror Unauthorized with the same message; the cause is kept for logs.
func (m *Manager) Verify(r *http.Request) (*Claims, error) {
	c, _, err := m.verify(r)
	return c, err
}

func (m *Manager) verify(r *http.Request) (*Claims, string, error) {
	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		reason := ReasonMalformed
		if errors.Is(err, ErrMissingToken) {
			reason = ReasonMissing
		}
		return nil, reason, apierror.UnauthorizedCause(MsgInvalidToken, err)
	}
	c, err := m.VerifyToken(token)
	if err != nil {
		reason := ReasonInvalid
		if errors.Is(err, ErrExpiredToken) {
			reason = ReasonExpired
		}
		return nil, reason, apierror.UnauthorizedCause(MsgInvalidToken, err)
	}
	return c, "", nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedToken
	}
	return token, nil
}
