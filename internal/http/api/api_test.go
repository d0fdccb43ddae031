package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountGroupWrapsHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	MountGroup(r, GroupConfig{Prefix: "/public"}, ModuleFunc(func(c *Controller) {
		c.GET("/ok", func(ctx *gin.Context) (any, *APIError) {
			return gin.H{"ok": true}, nil
		})
		c.GET("/fail", func(ctx *gin.Context) (any, *APIError) {
			return nil, &APIError{Code: http.StatusConflict, Message: "nope", Reason: "conflict"}
		})
		c.POST("/queued", func(ctx *gin.Context) (any, *APIError) {
			return Accepted{Body: gin.H{"queued": true}}, nil
		})
	}))
	MountGroup(r, GroupConfig{Prefix: "/private", Auth: true, SecretKey: "s3cret"}, ModuleFunc(func(c *Controller) {
		c.GET("/me", func(ctx *gin.Context, userID string) (any, *APIError) {
			return gin.H{"user_id": userID}, nil
		})
	}))

	do := func(method, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "/public/ok", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = do(http.MethodGet, "/public/fail", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"nope","code":"conflict"}`, w.Body.String())

	w = do(http.MethodPost, "/public/queued", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(http.MethodGet, "/private/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.GenerateJWT("user-7", "s3cret", time.Hour)
	require.NoError(t, err)
	w = do(http.MethodGet, "/private/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"user-7"}`, w.Body.String())
}
