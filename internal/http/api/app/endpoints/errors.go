package endpoints

import (
	"context"
	"errors"
	"net/http"

	"github.com/Nixie-Tech-LLC/minaret/internal/db"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
	"github.com/Nixie-Tech-LLC/minaret/internal/report"
	"github.com/Nixie-Tech-LLC/minaret/internal/resolver"
	"github.com/Nixie-Tech-LLC/minaret/internal/tracking"
	"github.com/rs/zerolog/log"
)

// apiError maps domain failures to HTTP responses. Unexpected failures are
// reported and hidden behind a generic message.
func apiError(err error, operation string) *api.APIError {
	switch {
	case errors.Is(err, resolver.ErrNoLocationNoCache):
		return &api.APIError{Code: http.StatusConflict, Message: "location is required to find a nearby masjid", Reason: "location_required"}
	case errors.Is(err, resolver.ErrDirectoryLookup):
		log.Warn().Err(err).Str("operation", operation).Msg("directory lookup failed")
		return &api.APIError{Code: http.StatusBadGateway, Message: "masjid directory is unavailable, try again", Reason: "directory_unavailable"}
	case errors.Is(err, resolver.ErrNoOrganizationNearby):
		return &api.APIError{Code: http.StatusNotFound, Message: "no masjid found nearby", Reason: "no_organization"}
	case errors.Is(err, resolver.ErrInvalidDate):
		return &api.APIError{Code: http.StatusBadRequest, Message: err.Error(), Reason: "invalid_date"}
	case errors.Is(err, db.ErrNotFound):
		return &api.APIError{Code: http.StatusNotFound, Message: "organization not found", Reason: "not_found"}
	case errors.Is(err, tracking.ErrClosed):
		return &api.APIError{Code: http.StatusServiceUnavailable, Message: "shutting down", Reason: "unavailable"}
	case errors.Is(err, context.DeadlineExceeded):
		return &api.APIError{Code: http.StatusGatewayTimeout, Message: "request timed out", Reason: "timeout"}
	}

	log.Error().Err(err).Str("operation", operation).Msg("request failed")
	report.Error(err, report.Options{Tags: map[string]string{"operation": operation}})
	return &api.APIError{Code: http.StatusInternalServerError, Message: "internal error", Reason: "internal"}
}

func badRequest(msg string) *api.APIError {
	return &api.APIError{Code: http.StatusBadRequest, Message: msg, Reason: "bad_request"}
}
