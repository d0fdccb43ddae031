package packets

import "github.com/Nixie-Tech-LLC/minaret/internal/model"

type LocationRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lon *float64 `json:"lon" binding:"required"`
}

// LifecycleRequest reports an app state transition. Coordinates are
// optional on "active".
type LifecycleRequest struct {
	State string   `json:"state" binding:"required,oneof=active inactive background closed"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
}

type PermissionRequest struct {
	Granted *bool `json:"granted" binding:"required"`
}

type UpdatePreferenceRequest struct {
	Mode          model.Mode               `json:"mode" binding:"required,oneof=pinned auto"`
	PinnedOrgID   *string                  `json:"pinned_org_id"`
	Notifications *model.NotificationLevel `json:"notifications"`
}
