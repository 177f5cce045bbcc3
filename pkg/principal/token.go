package principal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is used when no issuer is configured
const DefaultIssuer = "tenantgate"

// ErrInvalidToken indicates the token failed validation
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload of an access token
type Claims struct {
	Email            string  `json:"email,omitempty"`
	OrganizationID   *string `json:"organizationId,omitempty"`
	OrganizationSlug string  `json:"organizationSlug,omitempty"`
	IsSuperAdmin     bool    `json:"isSuperAdmin"`
	jwt.RegisteredClaims
}

// Resolver turns a raw bearer token into a Principal
type Resolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// TokenConfig configures signing and verification
type TokenConfig struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
}

// JWTResolver verifies HS256 access tokens
type JWTResolver struct {
	config TokenConfig
	parser *jwt.Parser
}

// NewJWTResolver creates a resolver for tokens signed with config.Secret
func NewJWTResolver(config TokenConfig) (*JWTResolver, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(config.Leeway),
	)

	return &JWTResolver{config: config, parser: parser}, nil
}

// Resolve validates the token signature and claims and returns the principal
func (r *JWTResolver) Resolve(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := r.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return r.config.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, ErrInvalidToken
	}

	p := Principal{
		UserID:           claims.Subject,
		Email:            claims.Email,
		OrganizationSlug: claims.OrganizationSlug,
		IsSuperAdmin:     claims.IsSuperAdmin,
		TokenID:          claims.ID,
	}
	if claims.OrganizationID != nil && *claims.OrganizationID != "" {
		orgID := *claims.OrganizationID
		p.OrganizationID = &orgID
	}
	return p, nil
}

// Issuer signs access tokens. Production tokens come from the identity
// provider; the issuer backs the admin CLI and tests.
type Issuer struct {
	config TokenConfig
}

// NewIssuer creates a token issuer
func NewIssuer(config TokenConfig) (*Issuer, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if config.Issuer == "" {
		config.Issuer = DefaultIssuer
	}
	return &Issuer{config: config}, nil
}

// Issue signs a token for p valid for ttl
func (i *Issuer) Issue(p Principal, ttl time.Duration) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}

	now := time.Now().UTC()
	tokenID := p.TokenID
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	claims := Claims{
		Email:            p.Email,
		OrganizationID:   p.OrganizationID,
		OrganizationSlug: p.OrganizationSlug,
		IsSuperAdmin:     p.IsSuperAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.config.Issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        tokenID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
