package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"edulead_chat_server/pkg/errorx"
)

type jwtConfig struct {
	secret       string
	accessExpiry time.Duration
}

var conf *jwtConfig

// Init configures token signing. accessExpiryMinutes applies to access
// tokens used by the counsellor dashboard.
func Init(secret string, accessExpiryMinutes int) {
	conf = &jwtConfig{
		secret:       secret,
		accessExpiry: time.Duration(accessExpiryMinutes) * time.Minute,
	}
}

// Claims carried by dashboard access tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAccessToken issues a signed access token for a counsellor or
// supervisor.
func GenerateAccessToken(userID, role string) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(conf.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "edulead_chat",
			Subject:   "access_token",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(conf.secret))
}

// ParseToken validates a token and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(conf.secret), nil
	})
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeUnauthorized, "parse token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errorx.New(errorx.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}
