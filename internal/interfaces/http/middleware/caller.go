package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	appcustody "github.com/vaultbridge/backend/internal/application/custody"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"github.com/vaultbridge/backend/internal/interfaces/http/dto"
)

const (
	// CallerHeader names the account on whose behalf the request acts
	CallerHeader = "X-Caller-Address"
	// CallerKey is the gin context key holding the parsed caller
	CallerKey = "caller"
)

// Caller reads the X-Caller-Address header and binds the account to the
// request context. Requests without the header pass through unchanged; a
// malformed header is rejected.
func Caller() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(CallerHeader)
		if raw == "" {
			c.Next()
			return
		}
		addr, err := valueobject.ParseAddress(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeBadRequest,
				"Invalid "+CallerHeader+" header: "+err.Error(),
				GetRequestID(c),
			))
			return
		}
		bindCaller(c, addr)
		c.Next()
	}
}

func bindCaller(c *gin.Context, addr valueobject.Address) {
	c.Set(CallerKey, addr)
	c.Request = c.Request.WithContext(appcustody.WithCaller(c.Request.Context(), addr))
}

// RequireCaller rejects requests that did not present a caller account.
// It must run after Caller or CallerFromToken.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetCaller(c); !ok {
			abortUnauthorized(c, "A caller account is required")
			return
		}
		c.Next()
	}
}

// GetCaller returns the caller bound by the Caller middleware
func GetCaller(c *gin.Context) (valueobject.Address, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return valueobject.ZeroAddress, false
	}
	addr, ok := v.(valueobject.Address)
	return addr, ok
}
