package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/gatherspace/internal/platform/errors"
)

func TestLoadVerifierConfigFromEnv(t *testing.T) {
	t.Setenv(EnvAuthIssuer, "")
	t.Setenv(EnvAuthAudience, "")
	t.Setenv(EnvAuthPublicKey, "")

	if _, err := LoadVerifierConfigFromEnv(nil); err == nil {
		t.Fatal("expected error when env vars are missing")
	}

	pubKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	t.Setenv(EnvAuthIssuer, "issuer")
	t.Setenv(EnvAuthAudience, "calendar")
	t.Setenv(EnvAuthPublicKey, base64.RawStdEncoding.EncodeToString(pubKey))

	cfg, err := LoadVerifierConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("load verifier config: %v", err)
	}
	if cfg.Issuer != "issuer" || cfg.Audience != "calendar" {
		t.Fatal("expected issuer and audience to be loaded")
	}
	if len(cfg.Key) != ed25519.PublicKeySize {
		t.Fatalf("expected public key size %d", ed25519.PublicKeySize)
	}
}

func TestVerifyTokenSuccess(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := signToken(t, priv, map[string]any{
		"alg": "EdDSA",
		"typ": "JWT",
	}, map[string]any{
		"iss": "issuer",
		"aud": []string{"calendar", "secondary"},
		"sub": "user-1",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Add(-time.Minute).Unix(),
		"jti": "jti-1",
	})

	cfg := VerifierConfig{Issuer: "issuer", Audience: "calendar", Key: pub, Now: func() time.Time { return now }}
	identity, err := VerifyToken(token, cfg)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if identity.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", identity.UserID)
	}
	if !identity.ExpiresAt.Equal(time.Unix(now.Add(time.Hour).Unix(), 0).UTC()) {
		t.Fatal("expected expires at to match exp")
	}
}

func TestVerifyTokenFailures(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := VerifierConfig{Issuer: "issuer", Audience: "calendar", Key: pub, Now: func() time.Time { return now }}

	base := map[string]any{
		"iss": "issuer",
		"aud": []string{"calendar"},
		"sub": "user-1",
		"exp": now.Add(time.Hour).Unix(),
	}

	tests := []struct {
		name     string
		token    string
		wantCode apperrors.Code
	}{
		{
			name:     "empty token",
			token:    "  ",
			wantCode: apperrors.CodeTokenInvalid,
		},
		{
			name:     "wrong key",
			token:    signToken(t, otherPriv, map[string]any{"alg": "EdDSA", "typ": "JWT"}, base),
			wantCode: apperrors.CodeTokenInvalid,
		},
		{
			name: "expired",
			token: signToken(t, priv, map[string]any{"alg": "EdDSA", "typ": "JWT"}, map[string]any{
				"iss": "issuer", "aud": []string{"calendar"}, "sub": "user-1", "exp": now.Add(-time.Minute).Unix(),
			}),
			wantCode: apperrors.CodeTokenExpired,
		},
		{
			name: "issuer mismatch",
			token: signToken(t, priv, map[string]any{"alg": "EdDSA", "typ": "JWT"}, map[string]any{
				"iss": "other", "aud": []string{"calendar"}, "sub": "user-1", "exp": now.Add(time.Hour).Unix(),
			}),
			wantCode: apperrors.CodeTokenInvalid,
		},
		{
			name: "audience mismatch",
			token: signToken(t, priv, map[string]any{"alg": "EdDSA", "typ": "JWT"}, map[string]any{
				"iss": "issuer", "aud": []string{"other"}, "sub": "user-1", "exp": now.Add(time.Hour).Unix(),
			}),
			wantCode: apperrors.CodeTokenInvalid,
		},
		{
			name: "missing subject",
			token: signToken(t, priv, map[string]any{"alg": "EdDSA", "typ": "JWT"}, map[string]any{
				"iss": "issuer", "aud": []string{"calendar"}, "exp": now.Add(time.Hour).Unix(),
			}),
			wantCode: apperrors.CodeTokenInvalid,
		},
		{
			name: "not yet active",
			token: signToken(t, priv, map[string]any{"alg": "EdDSA", "typ": "JWT"}, map[string]any{
				"iss": "issuer", "aud": []string{"calendar"}, "sub": "user-1",
				"exp": now.Add(time.Hour).Unix(), "nbf": now.Add(time.Minute).Unix(),
			}),
			wantCode: apperrors.CodeTokenInvalid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := VerifyToken(tc.token, cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperrors.CodeOf(err); got != tc.wantCode {
				t.Fatalf("expected code %s, got %s (%v)", tc.wantCode, got, err)
			}
		})
	}
}

func TestVerifyTokenRejectsUnconfiguredVerifier(t *testing.T) {
	_, err := VerifyToken("token", VerifierConfig{})
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		t.Fatalf("expected a plain configuration error, got %v", err)
	}
}

func signToken(t *testing.T, privateKey ed25519.PrivateKey, header, payload map[string]any) string {
	t.Helper()

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	encodedHeader := base64.RawURLEncoding.EncodeToString(headerJSON)
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	signingInput := encodedHeader + "." + encodedPayload
	signature := ed25519.Sign(privateKey, []byte(signingInput))
	encodedSig := base64.RawURLEncoding.EncodeToString(signature)
	return signingInput + "." + encodedSig
}
