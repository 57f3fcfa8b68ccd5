package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Token types carried in the "token_type" claim
const (
	TokenTypeAccess       = "access"
	TokenTypeVerification = "verification"
)

// TokenService issues and validates the two JWT kinds the system uses:
// admin access tokens and single-purpose email-verification tokens.
type TokenService interface {
	GenerateAccessToken(patronID uint) (string, error)
	ValidateAccessToken(token string) (*TokenClaims, error)
	GenerateVerificationToken(patronID uint, email string) (string, error)
	ValidateVerificationToken(token string) (*TokenClaims, error)
}

// TokenClaims represents the claims in a JWT token
type TokenClaims struct {
	PatronID  uint      `json:"patron_id"`
	Email     string    `json:"email,omitempty"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenServiceImpl implements TokenService with an HMAC signing key
type TokenServiceImpl struct {
	secretKey       []byte
	accessTTL       time.Duration
	verificationTTL time.Duration
	issuer          string
}

// NewTokenService creates a new token service
func NewTokenService(secretKey string, accessTTL, verificationTTL time.Duration, issuer string) (TokenService, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("token secret key is required")
	}
	return &TokenServiceImpl{
		secretKey:       []byte(secretKey),
		accessTTL:       accessTTL,
		verificationTTL: verificationTTL,
		issuer:          issuer,
	}, nil
}

type jwtClaims struct {
	PatronID  uint   `json:"patron_id"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken issues an admin session token
func (s *TokenServiceImpl) GenerateAccessToken(patronID uint) (string, error) {
	return s.generate(patronID, "", TokenTypeAccess, s.accessTTL)
}

// ValidateAccessToken parses and validates an admin session token
func (s *TokenServiceImpl) ValidateAccessToken(token string) (*TokenClaims, error) {
	return s.validate(token, TokenTypeAccess)
}

// GenerateVerificationToken issues a token for an email verification link.
// The email is embedded so the link is invalidated by an address change.
func (s *TokenServiceImpl) GenerateVerificationToken(patronID uint, email string) (string, error) {
	return s.generate(patronID, email, TokenTypeVerification, s.verificationTTL)
}

// ValidateVerificationToken parses and validates an email verification token
func (s *TokenServiceImpl) ValidateVerificationToken(token string) (*TokenClaims, error) {
	return s.validate(token, TokenTypeVerification)
}

func (s *TokenServiceImpl) generate(patronID uint, email, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		PatronID:  patronID,
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenServiceImpl) validate(tokenStr, wantType string) (*TokenClaims, error) {
	var claims jwtClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.TokenType != wantType {
		return nil, ErrTokenInvalid
	}

	out := &TokenClaims{
		PatronID:  claims.PatronID,
		Email:     claims.Email,
		TokenType: claims.TokenType,
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
