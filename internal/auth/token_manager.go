package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = time.Hour
	audienceAPI     = "ballotbox-api"
)

var (
	// ErrMissingSigningSecret indicates the manager was built without a key.
	ErrMissingSigningSecret = errors.New("auth: signing secret must be provided")
	// ErrInvalidVoterToken indicates a token that fails signature, issuer,
	// audience or lifetime checks.
	ErrInvalidVoterToken = errors.New("auth: invalid voter token")
	// ErrExpiredVoterToken indicates a well-formed but expired token.
	ErrExpiredVoterToken = errors.New("auth: voter token expired")
)

// TokenManagerConfig configures voter session token issuance and validation.
// The accounts subsystem shares the signing secret and mints tokens after its
// own login flow; this engine only needs to validate them, but issuance is
// kept here for the operator CLI and tests.
type TokenManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenManager issues and validates HS256 voter session tokens whose subject
// is the voter profile id.
type TokenManager struct {
	signingSecret []byte
	issuer        string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenManager constructs a TokenManager with sane defaults.
func NewTokenManager(cfg TokenManagerConfig) (*TokenManager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        cfg.Issuer,
		tokenTTL:      ttl,
		clock:         clock,
	}, nil
}

// IssueVoterToken produces a signed session token and its expiry in seconds.
func (m *TokenManager) IssueVoterToken(voterID uint) (string, int64, error) {
	if voterID == 0 {
		return "", 0, fmt.Errorf("%w: voter id required", ErrInvalidVoterToken)
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.tokenTTL)

	registered := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(voterID), 10),
		Issuer:    m.issuer,
		Audience:  []string{audienceAPI},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registered)
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken checks the session token and returns the voter profile id.
func (m *TokenManager) ValidateToken(tokenString string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidVoterToken, token.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithAudience(audienceAPI),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredVoterToken
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidVoterToken, err)
	}

	voterID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || voterID == 0 {
		return 0, fmt.Errorf("%w: subject is not a voter id", ErrInvalidVoterToken)
	}
	return uint(voterID), nil
}
