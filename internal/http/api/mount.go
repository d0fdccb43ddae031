package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/minaret/internal/http/middleware"
)

// Module is a pluggable feature that attaches its endpoints to a Controller (a gin group).
type Module interface {
	Mount(c *Controller)
}

// ModuleFunc lets you define a Module with a simple function.
type ModuleFunc func(c *Controller)

func (f ModuleFunc) Mount(c *Controller) { f(c) }

// Controller registers endpoints on a group. Handlers may be a HandlerFunc,
// a HandlerFuncWithAuth or a plain gin.HandlerFunc for streaming responses.
type Controller struct {
	Group *gin.RouterGroup
}

func (c *Controller) GET(path string, h any)    { c.Group.Handle(http.MethodGet, path, wrap(h)) }
func (c *Controller) POST(path string, h any)   { c.Group.Handle(http.MethodPost, path, wrap(h)) }
func (c *Controller) PUT(path string, h any)    { c.Group.Handle(http.MethodPut, path, wrap(h)) }
func (c *Controller) DELETE(path string, h any) { c.Group.Handle(http.MethodDelete, path, wrap(h)) }

func wrap(h any) gin.HandlerFunc {
	switch fn := h.(type) {
	case func(*gin.Context, string) (any, *APIError):
		return ResolveEndpointWithAuth(fn)
	case HandlerFuncWithAuth:
		return ResolveEndpointWithAuth(fn)
	case func(*gin.Context) (any, *APIError):
		return ResolveEndpoint(fn)
	case HandlerFunc:
		return ResolveEndpoint(fn)
	case func(*gin.Context):
		return fn
	case gin.HandlerFunc:
		return fn
	}
	log.Fatal().Str("type", fmt.Sprintf("%T", h)).Msg("api.Controller: unsupported handler type")
	return nil
}

// GroupConfig tells the api package how to mount a group.
type GroupConfig struct {
	Prefix     string
	Auth       bool
	SecretKey  string            // required if Auth == true
	Middleware []gin.HandlerFunc // optional additional middleware
}

// MountGroup mounts one or more Modules under a prefix with optional auth.
func MountGroup(parent gin.IRoutes, cfg GroupConfig, modules ...Module) {
	var grp *gin.RouterGroup

	switch v := parent.(type) {
	case *gin.Engine:
		grp = v.Group(cfg.Prefix)
	case *gin.RouterGroup:
		if cfg.Prefix != "" {
			grp = v.Group(cfg.Prefix)
		} else {
			grp = v
		}
	default:
		log.Fatal().Str("type", fmt.Sprintf("%T", parent)).Msg("api.MountGroup: unsupported router type")
	}

	// Apply middleware in a deterministic order.
	for _, mw := range cfg.Middleware {
		grp.Use(mw)
	}
	if cfg.Auth {
		if cfg.SecretKey == "" {
			log.Fatal().Msg("api.MountGroup: Auth enabled but SecretKey is empty")
		}
		grp.Use(middleware.JWTMiddleware(cfg.SecretKey))
	}

	controller := &Controller{Group: grp}

	for _, m := range modules {
		m.Mount(controller)
	}
}
