package jwt

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims identify an application-logic peer by the callback handle it was
// registered under.
type Claims struct {
	CallbackHandle int64  `json:"callback_handle"`
	EntryPoint     string `json:"entry_point,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a peer token for the given callback handle.
func GenerateToken(handle int64, entryPoint, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		CallbackHandle: handle,
		EntryPoint:     entryPoint,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(handle, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.CallbackHandle == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
