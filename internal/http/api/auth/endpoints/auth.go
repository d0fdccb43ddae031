package endpoints

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api/auth/packets"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/middleware"
)

const devTokenTTL = 72 * time.Hour

type TokenIssuer struct {
	jwtSecret string
	ttl       time.Duration
	now       func() time.Time
}

func newTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{jwtSecret: secret, ttl: devTokenTTL, now: time.Now}
}

// DevTokenModule issues tokens for any user id. Mount it only in
// development; production tokens come from the account service.
func DevTokenModule(jwtSecret string) api.Module {
	ctl := newTokenIssuer(jwtSecret)
	return api.ModuleFunc(func(c *api.Controller) {
		c.POST("/auth/token", ctl.issueToken)
	})
}

// SessionModule reports who the caller is authenticated as.
func SessionModule() api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/auth/session", currentSession)
	})
}

// POST /api/dev/auth/token
func (t *TokenIssuer) issueToken(ctx *gin.Context) (any, *api.APIError) {
	var request packets.TokenRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	token, err := middleware.GenerateJWT(request.UserID, t.jwtSecret, t.ttl)
	if err != nil {
		log.Error().Err(err).Str("user_id", request.UserID).Msg("could not generate JWT")
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "Something went wrong, please try again"}
	}

	log.Info().Str("user_id", request.UserID).Msg("issued development token")
	return packets.TokenResponse{
		Token:     token,
		ExpiresAt: t.now().Add(t.ttl).UTC().Format(time.RFC3339),
	}, nil
}

// GET /api/app/auth/session
func currentSession(ctx *gin.Context, userID string) (any, *api.APIError) {
	return packets.SessionResponse{UserID: userID}, nil
}
