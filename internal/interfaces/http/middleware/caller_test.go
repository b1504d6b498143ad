package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appcustody "github.com/vaultbridge/backend/internal/application/custody"
	"github.com/vaultbridge/backend/internal/infrastructure/logger"
)

const callerHex = "0x00000000000000000000000000000000000000a1"

func TestCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		header     string
		require    bool
		wantStatus int
		wantCaller string
	}{
		{name: "binds caller", header: callerHex, wantStatus: http.StatusOK, wantCaller: callerHex},
		{name: "normalizes case", header: "0x00000000000000000000000000000000000000A1", wantStatus: http.StatusOK, wantCaller: callerHex},
		{name: "absent header passes through", wantStatus: http.StatusOK},
		{name: "malformed header", header: "alice", wantStatus: http.StatusBadRequest},
		{name: "absent header with RequireCaller", require: true, wantStatus: http.StatusUnauthorized},
		{name: "present header with RequireCaller", header: callerHex, require: true, wantStatus: http.StatusOK, wantCaller: callerHex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(Caller())
			if tt.require {
				router.Use(RequireCaller())
			}
			var fromApp, fromLog string
			var bound bool
			router.GET("/test", func(c *gin.Context) {
				caller := appcustody.CallerFromContext(c.Request.Context())
				if !caller.IsZero() {
					fromApp = caller.String()
				}
				fromLog = logger.Caller(c.Request.Context())
				_, bound = GetCaller(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(CallerHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCaller, fromApp)
			assert.Equal(t, tt.wantCaller, fromLog)
			assert.Equal(t, tt.wantCaller != "", bound)
		})
	}
}
