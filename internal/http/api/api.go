package api

import (
	"net/http"

	"github.com/Nixie-Tech-LLC/minaret/internal/http/middleware"
	"github.com/gin-gonic/gin"
)

// APIError is returned by handlers and rendered as {"error", "code"}.
type APIError struct {
	Code    int
	Message string
	// Reason is a stable machine-readable identifier for clients.
	Reason string
}

func (e *APIError) Error() string { return e.Message }

type HandlerFuncWithAuth func(ctx *gin.Context, userID string) (any, *APIError)
type HandlerFunc func(ctx *gin.Context) (any, *APIError)

func ResolveEndpointWithAuth(h HandlerFuncWithAuth) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID, ok := middleware.GetUserID(ctx)
		if !ok {
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		result, apiErr := h(ctx, userID)
		respond(ctx, result, apiErr)
	}
}

func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, apiErr := h(ctx)
		respond(ctx, result, apiErr)
	}
}

func respond(ctx *gin.Context, result any, apiErr *APIError) {
	if apiErr != nil {
		body := gin.H{"error": apiErr.Message}
		if apiErr.Reason != "" {
			body["code"] = apiErr.Reason
		}
		ctx.JSON(apiErr.Code, body)
		return
	}
	if ctx.Writer.Written() {
		return
	}
	if accepted, ok := result.(Accepted); ok {
		ctx.JSON(http.StatusAccepted, accepted.Body)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// Accepted wraps a response body that should be sent with 202.
type Accepted struct {
	Body any
}
