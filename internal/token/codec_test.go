package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-lease-system/internal/apperror"
)

const testSecret = "test-lease-secret"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleClaims(now time.Time) Claims {
	return Claims{
		Issuer:    "license-lease-system",
		Subject:   "run-1",
		ID:        "5f1d7f0e-0000-4000-8000-000000000001",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(5 * time.Minute).Unix(),
		TenantID:  "t1",
		UserID:    "u1",
		VmUuid:    "vm-aaaa1111",
		AgentID:   "agent-1",
		Module:    "winsible",
		Version:   "1.0.0",
		LicenseID: 7,
	}
}

// signRaw 用任意 header/payload 段构造带合法签名的令牌
func signRaw(headerJSON, payloadJSON string) string {
	input := encoding.EncodeToString([]byte(headerJSON)) + "." + encoding.EncodeToString([]byte(payloadJSON))
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(input))
	return input + "." + encoding.EncodeToString(mac.Sum(nil))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := NewCodec(testSecret, WithClock(fixedClock(now)))

	claims := sampleClaims(now)
	signed, err := codec.Sign(claims)
	require.NoError(t, err)
	assert.Len(t, strings.Split(signed, "."), 3)

	got, err := codec.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, claims, *got)
}

func TestHeaderIsFixed(t *testing.T) {
	codec := NewCodec(testSecret)
	signed, err := codec.Sign(sampleClaims(time.Now()))
	require.NoError(t, err)

	headerJSON, err := encoding.DecodeString(strings.Split(signed, ".")[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"alg":"HS256","typ":"JWT"}`, string(headerJSON))
}

func TestVerifyRejectsMutatedSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := NewCodec(testSecret, WithClock(fixedClock(now)))
	signed, err := codec.Sign(sampleClaims(now))
	require.NoError(t, err)

	sigStart := strings.LastIndex(signed, ".") + 1
	for i := sigStart; i < len(signed); i++ {
		replacement := byte('A')
		if signed[i] == 'A' {
			replacement = 'B'
		}
		mutated := signed[:i] + string(replacement) + signed[i+1:]

		_, err := codec.Verify(mutated)
		require.Error(t, err, "position %d", i)
		assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized), "position %d", i)
	}
}

func TestVerifyFailures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	codec := NewCodec(testSecret, WithClock(fixedClock(now)))

	valid, err := codec.Sign(sampleClaims(now))
	require.NoError(t, err)
	otherSecret, err := NewCodec("another-secret", WithClock(fixedClock(now))).Sign(sampleClaims(now))
	require.NoError(t, err)

	expiredClaims := sampleClaims(now)
	expiredClaims.ExpiresAt = now.Unix()
	expired, err := codec.Sign(expiredClaims)
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		wantCode string
	}{
		{name: "two_segments", token: "a.b", wantCode: apperror.CodeUnauthorized},
		{name: "four_segments", token: valid + ".x", wantCode: apperror.CodeUnauthorized},
		{name: "empty", token: "", wantCode: apperror.CodeUnauthorized},
		{name: "other_secret", token: otherSecret, wantCode: apperror.CodeUnauthorized},
		{name: "unsupported_alg", token: signRaw(`{"alg":"none","typ":"JWT"}`, `{"jti":"x","exp":9999999999}`), wantCode: apperror.CodeUnauthorized},
		{name: "malformed_header", token: signRaw(`{"alg":`, `{"jti":"x","exp":9999999999}`), wantCode: apperror.CodeUnauthorized},
		{name: "malformed_payload", token: signRaw(`{"alg":"HS256","typ":"JWT"}`, `not-json`), wantCode: apperror.CodeUnauthorized},
		{name: "missing_exp", token: signRaw(`{"alg":"HS256","typ":"JWT"}`, `{"jti":"x"}`), wantCode: apperror.CodeUnauthorized},
		{name: "expired_at_now", token: expired, wantCode: apperror.CodeLeaseExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.token)
			require.Error(t, err)
			appErr, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestMissingSecret(t *testing.T) {
	codec := NewCodec("")
	assert.False(t, codec.Configured())

	_, err := codec.Sign(sampleClaims(time.Now()))
	assert.True(t, apperror.HasCode(err, apperror.CodeConfigError))

	_, err = codec.Verify("a.b.c")
	assert.True(t, apperror.HasCode(err, apperror.CodeConfigError))
}
