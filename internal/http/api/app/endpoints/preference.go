package endpoints

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/minaret/internal/http/api"
	"github.com/Nixie-Tech-LLC/minaret/internal/http/api/app/packets"
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/Nixie-Tech-LLC/minaret/internal/notify"
)

type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string) (*model.Preference, error)
	SetPreference(ctx context.Context, pref model.Preference) error
	GetOrganizationByID(ctx context.Context, id string) (*model.Organization, error)
}

type PreferenceController struct {
	store  PreferenceStore
	topics notify.TopicSync
}

func NewPreferenceController(store PreferenceStore, topics notify.TopicSync) *PreferenceController {
	if topics == nil {
		topics = notify.Noop{}
	}
	return &PreferenceController{store: store, topics: topics}
}

func PreferenceModule(store PreferenceStore, topics notify.TopicSync) api.Module {
	ctl := NewPreferenceController(store, topics)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/preference", ctl.getPreference)
		c.PUT("/preference", ctl.updatePreference)
	})
}

func (p *PreferenceController) getPreference(ctx *gin.Context, userID string) (any, *api.APIError) {
	pref, err := p.store.GetPreference(ctx.Request.Context(), userID)
	if err != nil {
		return nil, apiError(err, "get_preference")
	}
	return pref, nil
}

// updatePreference switches between pinned and automatic mode. Turning
// notifications off clears the user's topic subscription right away.
func (p *PreferenceController) updatePreference(ctx *gin.Context, userID string) (any, *api.APIError) {
	var request packets.UpdatePreferenceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, badRequest(err.Error())
	}

	reqCtx := ctx.Request.Context()
	pref, err := p.store.GetPreference(reqCtx, userID)
	if err != nil {
		return nil, apiError(err, "update_preference")
	}

	pref.Mode = request.Mode
	pref.PinnedOrgID = nil
	if request.Mode == model.ModePinned {
		if request.PinnedOrgID == nil || *request.PinnedOrgID == "" {
			return nil, badRequest("pinned_org_id is required in pinned mode")
		}
		if _, err := p.store.GetOrganizationByID(reqCtx, *request.PinnedOrgID); err != nil {
			return nil, apiError(err, "update_preference")
		}
		pref.PinnedOrgID = request.PinnedOrgID
	}
	if request.Notifications != nil {
		if !request.Notifications.Valid() {
			return nil, badRequest("notifications must be one of none, athan, all")
		}
		pref.Notifications = *request.Notifications
	}

	if err := p.store.SetPreference(reqCtx, *pref); err != nil {
		return nil, apiError(err, "update_preference")
	}

	if pref.Notifications == model.NotifyNone {
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), 10*time.Second)
			defer cancel()
			if err := p.topics.SyncSubscription(ctx, userID, nil, model.NotifyNone); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Msg("failed to clear topic subscription")
			}
		}()
	}
	return pref, nil
}
