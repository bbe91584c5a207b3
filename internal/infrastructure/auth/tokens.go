package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims carries the principal inside a signed token. TokenType keeps a
// refresh token from being accepted where an access token is expected.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"typ"`
}

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// JWTIssuer signs access and refresh tokens with separate HS256 secrets.
type JWTIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

func NewJWTIssuer(cfg TokenConfig) (*JWTIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("jwt secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &JWTIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}, nil
}

func (i *JWTIssuer) IssuePair(p domain.Principal) (domain.TokenPair, error) {
	access, err := i.sign(p, tokenTypeAccess, i.accessTTL, i.accessSecret)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := i.sign(p, tokenTypeRefresh, i.refreshTTL, i.refreshSecret)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *JWTIssuer) VerifyAccess(token string) (domain.Principal, error) {
	return i.verify(token, tokenTypeAccess, i.accessSecret)
}

func (i *JWTIssuer) VerifyRefresh(token string) (domain.Principal, error) {
	return i.verify(token, tokenTypeRefresh, i.refreshSecret)
}

func (i *JWTIssuer) sign(p domain.Principal, tokenType string, ttl time.Duration, secret []byte) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:      string(p.Role),
		TokenType: tokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (i *JWTIssuer) verify(raw, tokenType string, secret []byte) (domain.Principal, error) {
	op := "verify " + tokenType + " token"
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, domain.Fail(domain.ErrUnauthorized, op, "token expired")
		}
		return domain.Principal{}, domain.Fail(domain.ErrUnauthorized, op, "invalid token")
	}
	if !token.Valid || claims.TokenType != tokenType || claims.Subject == "" {
		return domain.Principal{}, domain.Fail(domain.ErrUnauthorized, op, "invalid token")
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Principal{}, domain.Fail(domain.ErrUnauthorized, op, "invalid token role")
	}
	return domain.Principal{UserID: claims.Subject, Role: role}, nil
}
