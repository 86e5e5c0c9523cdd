// Package auth verifies the access tokens calendar callers present and
// resolves them to user identities.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/gatherspace/internal/platform/config"
	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
)

// Environment variable names for token verification settings.
const (
	EnvAuthIssuer    = "GATHERSPACE_AUTH_ISSUER"
	EnvAuthAudience  = "GATHERSPACE_AUTH_AUDIENCE"
	EnvAuthPublicKey = "GATHERSPACE_AUTH_PUBLIC_KEY"
)

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Issuer    string `env:"GATHERSPACE_AUTH_ISSUER"`
	Audience  string `env:"GATHERSPACE_AUTH_AUDIENCE"`
	PublicKey string `env:"GATHERSPACE_AUTH_PUBLIC_KEY"`
}

// VerifierConfig defines how access tokens are verified.
type VerifierConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Identity captures the validated caller identity extracted from a
// token.
type Identity struct {
	UserID    string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JWTID     string
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
}

// LoadVerifierConfigFromEnv reads token verification configuration.
func LoadVerifierConfigFromEnv(now func() time.Time) (VerifierConfig, error) {
	var raw tokenEnv
	if err := config.ParseEnv(&raw); err != nil {
		return VerifierConfig{}, fmt.Errorf("parse auth env: %w", err)
	}
	issuer, err := config.Required(EnvAuthIssuer, raw.Issuer)
	if err != nil {
		return VerifierConfig{}, err
	}
	audience, err := config.Required(EnvAuthAudience, raw.Audience)
	if err != nil {
		return VerifierConfig{}, err
	}
	publicKey, err := config.Required(EnvAuthPublicKey, raw.PublicKey)
	if err != nil {
		return VerifierConfig{}, err
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return VerifierConfig{}, fmt.Errorf("decode auth public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return VerifierConfig{}, fmt.Errorf("auth public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return VerifierConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// VerifyToken verifies an access token and returns the caller identity.
func VerifyToken(token string, cfg VerifierConfig) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, apperrors.New(apperrors.CodeTokenInvalid, "access token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Identity{}, errors.New("token verifier is not configured")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Identity{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Identity{}, apperrors.WithMetadata(
			apperrors.CodeTokenInvalid,
			"token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Identity{}, apperrors.WithMetadata(
			apperrors.CodeTokenInvalid,
			"token audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Identity{}, apperrors.New(apperrors.CodeTokenInvalid, "token subject is required")
	}
	if parsed.ExpiresAt == nil {
		return Identity{}, apperrors.New(apperrors.CodeTokenInvalid, "token exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Identity{}, apperrors.New(apperrors.CodeTokenExpired, "access token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Identity{}, apperrors.New(apperrors.CodeTokenInvalid, "access token not active yet")
	}

	identity := Identity{
		UserID:    parsed.Subject,
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		ExpiresAt: exp,
		JWTID:     parsed.ID,
	}
	if parsed.IssuedAt != nil {
		identity.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return identity, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeTokenInvalid, "token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeTokenInvalid, "token alg is invalid")
	}
	return apperrors.New(apperrors.CodeTokenInvalid, "access token is invalid")
}

// audienceContains reports whether the audience list contains the given
// value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
