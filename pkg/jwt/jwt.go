package jwtutil

import (
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSubject = errors.New("jwt: token carries no user id")
	ErrNoKey          = errors.New("jwt: no verification key configured")
)

// Claims is the identity the upstream auth service signs. Only the user id
// and role are consumed here; older tokens carry the id as "user_id" or in
// "sub" instead of "uid".
type Claims struct {
	UserID       string `json:"uid"`
	Role         string `json:"role"`
	LegacyUserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func NewClaims(userID, role string, expiry time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

// Sign issues an RS256 token. Production tokens come from the auth service;
// this exists for tests and local tooling.
func Sign(claims *Claims, key *rsa.PrivateKey) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

type VerifierOption func(*verifierOptions)

type verifierOptions struct {
	issuer string
	leeway time.Duration
}

// WithIssuer requires the iss claim to match. Empty disables the check.
func WithIssuer(issuer string) VerifierOption {
	return func(o *verifierOptions) { o.issuer = strings.TrimSpace(issuer) }
}

// WithLeeway tolerates clock skew on exp, nbf and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(o *verifierOptions) { o.leeway = d }
}

// Verifier checks RS256 access tokens against one public key.
type Verifier struct {
	key    *rsa.PublicKey
	parser *jwt.Parser
}

func NewVerifier(key *rsa.PublicKey, opts ...VerifierOption) *Verifier {
	var o verifierOptions
	for _, opt := range opts {
		opt(&o)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}
	if o.leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(o.leeway))
	}
	return &Verifier{key: key, parser: jwt.NewParser(parserOpts...)}
}

// Verify returns the normalized claims of a valid token. Expiry surfaces as
// jwt.ErrTokenExpired.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if v == nil || v.key == nil {
		return nil, ErrNoKey
	}

	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	}); err != nil {
		return nil, err
	}

	claims.UserID = strings.TrimSpace(firstNonEmpty(claims.UserID, claims.LegacyUserID, claims.Subject))
	claims.Role = strings.ToLower(strings.TrimSpace(claims.Role))
	if claims.UserID == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// ParsePublicKeyPEM accepts a PKIX or PKCS#1 RSA public key.
func ParsePublicKeyPEM(raw []byte) (*rsa.PublicKey, error) {
	return jwt.ParseRSAPublicKeyFromPEM(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
