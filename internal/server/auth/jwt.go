// Package auth signs and verifies the HS256 JWTs used for sessions.
package auth

import (
	"errors"
	"time"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind separates access tokens from refresh tokens, so one can never
// be replayed as the other even if secrets were shared.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims are the registered claims plus the token kind. Subject carries the
// account id and ID a random jti, so two tokens minted in the same second
// still differ.
type Claims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"typ"`
}

// GenerateToken signs a token of the given kind for subject, valid for
// validity from now. It returns the token and its expiry.
func GenerateToken(kind TokenKind, subject string, secretKey []byte, validity time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(validity)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Kind: kind,
	})

	signed, err := token.SignedString(secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken verifies signature, algorithm, expiry and kind. Expired tokens
// yield common.ErrTokenExpired; every other failure common.ErrInvalidToken.
func ParseToken(kind TokenKind, tokenString string, secretKey []byte) (*Claims, error) {
	return parse(kind, tokenString, secretKey, jwt.WithExpirationRequired())
}

// GetSubjectFromToken returns the account id carried by a valid token.
func GetSubjectFromToken(kind TokenKind, tokenString string, secretKey []byte) (string, error) {
	claims, err := ParseToken(kind, tokenString, secretKey)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// SubjectIgnoringExpiry returns the subject of a correctly signed token of
// the given kind even if it has expired. It is only fit for binding checks,
// never for authentication.
func SubjectIgnoringExpiry(kind TokenKind, tokenString string, secretKey []byte) (string, error) {
	claims, err := parse(kind, tokenString, secretKey, jwt.WithoutClaimsValidation())
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func parse(kind TokenKind, tokenString string, secretKey []byte, opts ...jwt.ParserOption) (*Claims, error) {
	if tokenString == "" {
		return nil, common.ErrInvalidToken
	}

	claims := &Claims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
