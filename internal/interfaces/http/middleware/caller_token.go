package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"github.com/vaultbridge/backend/internal/interfaces/http/dto"
)

// MinTokenSecretLength is the shortest accepted HMAC secret
const MinTokenSecretLength = 32

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrInvalidSubject = errors.New("token subject is not an account address")
)

// TokenVerifier checks HS256 bearer tokens whose subject is the caller's
// account address.
type TokenVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier. An empty issuer accepts any issuer.
func NewTokenVerifier(secret, issuer string) (*TokenVerifier, error) {
	if len(secret) < MinTokenSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinTokenSecretLength)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}, nil
}

// Issue signs a token for caller valid for ttl
func (v *TokenVerifier) Issue(caller valueobject.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.String(),
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify validates token and returns the account in its subject
func (v *TokenVerifier) Verify(token string) (valueobject.Address, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return valueobject.ZeroAddress, ErrExpiredToken
		}
		return valueobject.ZeroAddress, ErrInvalidToken
	}
	addr, err := valueobject.ParseAddress(claims.Subject)
	if err != nil || addr.IsZero() {
		return valueobject.ZeroAddress, ErrInvalidSubject
	}
	return addr, nil
}

// CallerFromToken binds the caller from an "Authorization: Bearer" token.
// The X-Caller-Address header is not consulted. Requests without the
// header pass through so RequireCaller can reject them where needed.
func CallerFromToken(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok {
			abortUnauthorized(c, "Authorization header must carry a Bearer token")
			return
		}
		addr, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		bindCaller(c, addr)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeUnauthorized,
		message,
		GetRequestID(c),
	))
}
