package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
)

func newTestIssuer(t *testing.T) *JWTIssuer {
	t.Helper()
	issuer, err := NewJWTIssuer(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "docflow",
	})
	require.NoError(t, err)
	return issuer
}

func TestIssueAndVerifyPair(t *testing.T) {
	issuer := newTestIssuer(t)
	p := domain.Principal{UserID: "user-1", Role: domain.RoleAdmin}

	pair, err := issuer.IssuePair(p)
	require.NoError(t, err)

	got, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, p, got)

	got, err = issuer.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer(t)
	pair, err := issuer.IssuePair(domain.Principal{UserID: "user-1", Role: domain.RoleUser})
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.RefreshToken)
	require.True(t, domain.IsKind(err, domain.ErrUnauthorized), "got %v", err)

	_, err = issuer.VerifyRefresh(pair.AccessToken)
	require.True(t, domain.IsKind(err, domain.ErrUnauthorized), "got %v", err)
}

func TestExpiredAccessToken(t *testing.T) {
	issuer := newTestIssuer(t)
	issued := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }

	pair, err := issuer.IssuePair(domain.Principal{UserID: "user-1", Role: domain.RoleUser})
	require.NoError(t, err)

	issuer.now = func() time.Time { return issued.Add(16 * time.Minute) }
	_, err = issuer.VerifyAccess(pair.AccessToken)
	require.True(t, domain.IsKind(err, domain.ErrUnauthorized), "got %v", err)
	require.Equal(t, "token expired", domain.PublicMessage(err))
}

func TestRejectsForeignSignatureAndAlgorithm(t *testing.T) {
	issuer := newTestIssuer(t)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "docflow",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:      "admin",
		TokenType: tokenTypeAccess,
	}).SignedString([]byte("guessed-secret"))
	require.NoError(t, err)
	_, err = issuer.VerifyAccess(forged)
	require.True(t, domain.IsKind(err, domain.ErrUnauthorized), "got %v", err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "admin",
		TokenType:        tokenTypeAccess,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.VerifyAccess(unsigned)
	require.True(t, domain.IsKind(err, domain.ErrUnauthorized), "got %v", err)
}

func TestRejectsUnknownRole(t *testing.T) {
	issuer := newTestIssuer(t)
	pair, err := issuer.IssuePair(domain.Principal{UserID: "user-1", Role: domain.Role("superuser")})
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.AccessToken)
	require.True(t, domain.IsKind(err, domain.ErrUnauthorized), "got %v", err)
}

func TestNewJWTIssuerValidatesConfig(t *testing.T) {
	_, err := NewJWTIssuer(TokenConfig{AccessSecret: "same", RefreshSecret: "same", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	require.Error(t, err)
	_, err = NewJWTIssuer(TokenConfig{AccessSecret: "a", RefreshSecret: "b"})
	require.Error(t, err)
}

func cheapHasher() *Argon2Hasher {
	return NewArgon2Hasher(Argon2Params{Memory: 1024, Iterations: 1, Threads: 1, SaltLength: 16, KeyLength: 32})
}

func TestArgon2HashAndVerify(t *testing.T) {
	h := cheapHasher()

	encoded, err := h.Hash("correct horse")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$"), encoded)

	ok, err := h.Verify("correct horse", encoded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.Verify("wrong horse", encoded)
	require.NoError(t, err)
	require.False(t, ok)

	other, err := h.Hash("correct horse")
	require.NoError(t, err)
	require.NotEqual(t, encoded, other, "salt must differ per hash")
}

func TestArgon2VerifyUsesStoredParameters(t *testing.T) {
	encoded, err := cheapHasher().Hash("s3cret")
	require.NoError(t, err)

	ok, err := NewArgon2Hasher(DefaultArgon2Params).Verify("s3cret", encoded)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestArgon2VerifyRejectsMalformedHash(t *testing.T) {
	h := cheapHasher()

	ok, err := h.Verify("x", "")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = h.Verify("x", "$2a$10$bcryptlookinghash")
	require.Error(t, err)
}
