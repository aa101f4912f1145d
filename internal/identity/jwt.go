package identity

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mrz1836/taskreview/internal/domain"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// Claims are the token claims understood by JWTProvider. The subject is the actor ID.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 bearer tokens.
type JWTProvider struct {
	secret []byte
	issuer string
	admins []string
	now    func() time.Time
}

var _ Provider = (*JWTProvider)(nil)

// NewJWTProvider returns a provider verifying tokens signed with secret. When
// issuer is set, tokens must carry it. An actor is admin when its token says so
// or when it appears in admins.
func NewJWTProvider(secret, issuer string, admins []string) (*JWTProvider, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("%w: jwt secret must be at least 32 bytes", reviewerrors.ErrConfigInvalidIdentity)
	}
	return &JWTProvider{
		secret: []byte(secret),
		issuer: issuer,
		admins: NewStaticProvider(admins).admins,
		now:    time.Now,
	}, nil
}

// Authenticate implements Provider. credential is the raw token, with or
// without a "Bearer " prefix.
func (p *JWTProvider) Authenticate(_ context.Context, credential string) (domain.Actor, error) {
	raw := strings.TrimSpace(credential)
	if after, ok := strings.CutPrefix(raw, "Bearer "); ok {
		raw = strings.TrimSpace(after)
	}
	if raw == "" {
		return domain.Actor{}, fmt.Errorf("%w: bearer token is required", reviewerrors.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", reviewerrors.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return domain.Actor{}, fmt.Errorf("%w: invalid token", reviewerrors.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return domain.Actor{}, fmt.Errorf("%w: token has no subject", reviewerrors.ErrUnauthenticated)
	}

	return domain.Actor{
		ID:    claims.Subject,
		Admin: claims.Admin || slices.Contains(p.admins, claims.Subject),
	}, nil
}

// Issue signs a token for subject valid for ttl.
func (p *JWTProvider) Issue(subject string, admin bool, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("%w: subject %w", reviewerrors.ErrValidation, reviewerrors.ErrEmptyValue)
	}
	now := p.now()
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
