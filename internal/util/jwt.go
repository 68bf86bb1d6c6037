package util

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"license-lease-system/internal/model"
)

// SessionClaims 管理端会话令牌载荷
type SessionClaims struct {
	UID      string   `json:"uid"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// GenerateToken 为操作员签发会话令牌，uid 使用用户名（租户内唯一）
func GenerateToken(secret string, ttl time.Duration, user *model.User) (string, error) {
	if secret == "" {
		return "", errors.New("session secret not configured")
	}
	now := time.Now()
	claims := SessionClaims{
		UID:      user.Username,
		TenantID: user.TenantID,
		Roles:    user.RoleList(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateToken 校验会话令牌并返回载荷
func ValidateToken(secret, tokenString string) (*SessionClaims, error) {
	if secret == "" {
		return nil, errors.New("session secret not configured")
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UID == "" || claims.TenantID == "" {
		return nil, errors.New("token missing identity")
	}
	return claims, nil
}
