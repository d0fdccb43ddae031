package packets

import (
	"github.com/Nixie-Tech-LLC/minaret/internal/model"
)

type NextEventResponse struct {
	Name      string          `json:"name"`
	Kind      model.EventKind `json:"kind"`
	Time      string          `json:"time"`
	Display   string          `json:"display"`
	Tomorrow  bool            `json:"tomorrow"`
	Countdown string          `json:"countdown"`
	// Seconds until the event, for clients that render their own countdown.
	Seconds int64 `json:"seconds"`
}

type ResolveResponse struct {
	Organization   *model.Organization `json:"organization"`
	Mode           model.Mode          `json:"mode"`
	Date           string              `json:"date"`
	DistanceMeters *int                `json:"distance_meters,omitempty"`
	Table          *model.DailyTable   `json:"table"`
	NextEvent      *NextEventResponse  `json:"next_event,omitempty"`
}

type ScheduleResponse struct {
	OrgID  string            `json:"org_id"`
	Date   string            `json:"date"`
	Cached bool              `json:"cached"`
	Table  *model.DailyTable `json:"table"`
}

type CurrentEventResponse struct {
	OrgID     string             `json:"org_id"`
	Date      string             `json:"date"`
	NextEvent *NextEventResponse `json:"next_event"`
}

type TrackingResponse struct {
	Ready                 bool                `json:"ready"`
	Current               *Coordinates        `json:"current,omitempty"`
	Checkpoint            *Coordinates        `json:"checkpoint,omitempty"`
	Error                 string              `json:"error,omitempty"`
	Organization          *model.Organization `json:"organization,omitempty"`
	UpdateIntervalSeconds int                 `json:"update_interval_seconds"`
	UpdateDistanceMeters  int                 `json:"update_distance_meters"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
