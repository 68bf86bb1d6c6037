package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-lease-system/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	user := &model.User{ID: 7, TenantID: "t1", Username: "u1", Roles: "admin, release-manager"}

	token, err := GenerateToken("secret", time.Hour, user)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UID)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, []string{"admin", "release-manager"}, claims.Roles)
	assert.Equal(t, "7", claims.Subject)
}

func TestValidateTokenRejects(t *testing.T) {
	user := &model.User{ID: 1, TenantID: "t1", Username: "u1", Roles: "user"}

	expired, err := GenerateToken("secret", -time.Minute, user)
	require.NoError(t, err)
	_, err = ValidateToken("secret", expired)
	assert.Error(t, err)

	valid, err := GenerateToken("secret", time.Hour, user)
	require.NoError(t, err)
	_, err = ValidateToken("other", valid)
	assert.Error(t, err)

	_, err = ValidateToken("", valid)
	assert.Error(t, err)

	_, err = ValidateToken("secret", "not-a-token")
	assert.Error(t, err)
}
