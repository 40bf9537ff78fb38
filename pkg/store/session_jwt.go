package store

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"studycompanion/internal/util"
)

const (
	defaultJWTIssuer   = "studycompanion"
	defaultJWTAudience = "studycompanion-api"
	defaultJWTLeeway   = 30 * time.Second
	defaultSessionTTL  = 15 * time.Minute
)

var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenRevoked = errors.New("access token revoked")
)

// JWTConfig describes how access tokens are signed and checked.
type JWTConfig struct {
	// PrivateKeyPath is a PEM file (PKCS#1 or PKCS#8). When empty an
	// ephemeral key is generated, which only suits single-process dev setups.
	PrivateKeyPath string
	KeyID          string
	// VerifyKeyFiles maps kid to a PEM public key kept valid after rotation.
	VerifyKeyFiles map[string]string
	TTL            time.Duration
	Issuer         string
	Audience       string
	Leeway         time.Duration
}

// Session is a freshly issued access token.
type Session struct {
	Token     string    `json:"accessToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JWTSessionStore issues RS256 access tokens and checks them against a revoker.
type JWTSessionStore struct {
	signer    *rsa.PrivateKey
	signerKid string
	verifiers map[string]*rsa.PublicKey
	revoker   TokenRevoker

	ttl      time.Duration
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewJWTSessionStore loads keys from cfg and builds the store.
func NewJWTSessionStore(cfg JWTConfig, revoker TokenRevoker) (*JWTSessionStore, error) {
	var (
		key *rsa.PrivateKey
		err error
	)
	if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	} else {
		key, err = readPrivateKey(cfg.PrivateKeyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load jwt signing key: %w", err)
	}
	s := NewJWTSessionStoreWithKey(key, cfg, revoker)
	for kid, path := range cfg.VerifyKeyFiles {
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if kid == "" || path == "" {
			continue
		}
		pub, err := readPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		s.verifiers[kid] = pub
	}
	return s, nil
}

// NewJWTSessionStoreWithKey builds a store around an in-memory key.
func NewJWTSessionStoreWithKey(key *rsa.PrivateKey, cfg JWTConfig, revoker TokenRevoker) *JWTSessionStore {
	kid := strings.TrimSpace(cfg.KeyID)
	if kid == "" {
		kid = "primary"
	}
	s := &JWTSessionStore{
		signer:    key,
		signerKid: kid,
		verifiers: map[string]*rsa.PublicKey{kid: &key.PublicKey},
		revoker:   revoker,
		ttl:       cfg.TTL,
		issuer:    strings.TrimSpace(cfg.Issuer),
		audience:  strings.TrimSpace(cfg.Audience),
		leeway:    cfg.Leeway,
		now:       time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = defaultSessionTTL
	}
	if s.issuer == "" {
		s.issuer = defaultJWTIssuer
	}
	if s.audience == "" {
		s.audience = defaultJWTAudience
	}
	if s.leeway <= 0 {
		s.leeway = defaultJWTLeeway
	}
	return s
}

// TTL is the lifetime of issued access tokens.
func (s *JWTSessionStore) TTL() time.Duration { return s.ttl }

// NewSession signs an access token for userID.
func (s *JWTSessionStore) NewSession(_ context.Context, userID string) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, errors.New("user id required")
	}
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        util.NewID(),
		},
		IssuedAtMs: now.UnixMilli(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.signerKid
	signed, err := token.SignedString(s.signer)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: signed, ExpiresAt: expires.Truncate(time.Second)}, nil
}

// Verify checks signature, registered claims and revocation, returning the user id.
func (s *JWTSessionStore) Verify(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return "", err
		}
		if revoked {
			return "", ErrTokenRevoked
		}
		cutoff, err := s.revoker.RevokedBefore(ctx, claims.Subject)
		if err != nil {
			return "", err
		}
		if !cutoff.IsZero() && claims.issuedAt().Before(cutoff) {
			return "", ErrTokenRevoked
		}
	}
	return claims.Subject, nil
}

// DeleteSession revokes token for the rest of its lifetime. Invalid tokens are ignored.
func (s *JWTSessionStore) DeleteSession(ctx context.Context, token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokeUserSessions invalidates every token for userID issued before since.
func (s *JWTSessionStore) RevokeUserSessions(ctx context.Context, userID string, since time.Time) error {
	if s.revoker == nil {
		return nil
	}
	return s.revoker.RevokeUser(ctx, userID, since.Truncate(time.Millisecond), s.ttl+s.leeway)
}

// JWKS publishes every verification key, sorted by kid.
func (s *JWTSessionStore) JWKS() []JWK {
	kids := make([]string, 0, len(s.verifiers))
	for kid := range s.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	keys := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		pub := s.verifiers[kid]
		keys = append(keys, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: jwt.SigningMethodRS256.Alg(),
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return keys
}

// accessClaims carries a millisecond issue time so that a revocation cutoff
// set right before re-issuing does not hit the new token.
type accessClaims struct {
	jwt.RegisteredClaims
	IssuedAtMs int64 `json:"iat_ms,omitempty"`
}

func (c *accessClaims) issuedAt() time.Time {
	if c.IssuedAtMs > 0 {
		return time.UnixMilli(c.IssuedAtMs).UTC()
	}
	return c.IssuedAt.Time
}

func (s *JWTSessionStore) parse(token string) (*accessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := s.verifiers[strings.TrimSpace(kid)]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func readPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	var pub any
	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub = parsed
	} else if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		pub = cert.PublicKey
	} else {
		return nil, errors.New("unrecognised public key encoding")
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return key, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	return block, nil
}
