package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/ticket-portal/internal/domain"
)

// TokenManager handles issuing and validating viewer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute, now: time.Now}
}

// Claims describes JWT payload.
type Claims struct {
	Email         string `json:"email"`
	BackendUserID int    `json:"backend_user_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for the viewer.
func (tm *TokenManager) GenerateToken(email string, backendUserID int) (string, domain.Viewer, error) {
	issuedAt := tm.now()
	viewer := domain.Viewer{
		Email:         domain.NormalizeIdentity(email),
		BackendUserID: backendUserID,
		IssuedAt:      issuedAt,
		ExpiresAt:     issuedAt.Add(tm.ttl),
	}
	claims := &Claims{
		Email:         viewer.Email,
		BackendUserID: backendUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.Email,
			ExpiresAt: jwt.NewNumericDate(viewer.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}
	if backendUserID > 0 {
		claims.ID = strconv.Itoa(backendUserID)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", domain.Viewer{}, err
	}
	return tokenString, viewer, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Email) == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
