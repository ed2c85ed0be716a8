package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/terminal-bench/flightsurety/pkg/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrNoSecret     = errors.New("jwt secret not configured")
)

const issuer = "flightsurety"

// Service issues and verifies caller tokens. The subject of a token is the
// account address every mutating call is attributed to.
type Service struct {
	jwtSecret []byte
	now       func() time.Time
}

type Claims struct {
	Account string `json:"account"`
	jwt.RegisteredClaims
}

func NewService(jwtSecret string) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// Issue signs a token for account valid for ttl
func (s *Service) Issue(account models.Address, ttl time.Duration) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", ErrNoSecret
	}
	if account.IsZero() {
		return "", fmt.Errorf("issue token: %w: empty account", models.ErrInvalidArgument)
	}

	now := s.now()
	claims := &Claims{
		Account: account.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    issuer,
			Subject:   account.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses a token, with or without the "Bearer " prefix, and
// returns the caller address it was issued for.
func (s *Service) VerifyToken(tokenString string) (models.Address, *Claims, error) {
	if len(s.jwtSecret) == 0 {
		return "", nil, ErrNoSecret
	}
	tokenString = strings.TrimSpace(tokenString)
	if len(tokenString) > 7 && strings.EqualFold(tokenString[:7], "Bearer ") {
		tokenString = tokenString[7:]
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", nil, ErrTokenExpired
		}
		return "", nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", nil, ErrInvalidToken
	}

	account, err := models.ParseAddress(claims.Subject)
	if err != nil {
		return "", nil, ErrInvalidToken
	}
	return account, claims, nil
}
