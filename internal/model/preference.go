package model

type Mode string

const (
	ModePinned Mode = "pinned"
	ModeAuto   Mode = "auto"
)

func (m Mode) Valid() bool {
	return m == ModePinned || m == ModeAuto
}

type NotificationLevel string

const (
	NotifyNone  NotificationLevel = "none"
	NotifyAthan NotificationLevel = "athan"
	NotifyAll   NotificationLevel = "all"
)

func (n NotificationLevel) Valid() bool {
	return n == NotifyNone || n == NotifyAthan || n == NotifyAll
}

// Preference is the user's organization selection setting.
type Preference struct {
	UserID        string            `db:"user_id"        json:"user_id"`
	Mode          Mode              `db:"mode"           json:"mode"`
	PinnedOrgID   *string           `db:"pinned_org_id"  json:"pinned_org_id,omitempty"`
	Notifications NotificationLevel `db:"notifications"  json:"notifications"`
}

// DefaultPreference is used for users who never saved one.
func DefaultPreference(userID string) Preference {
	return Preference{UserID: userID, Mode: ModeAuto, Notifications: NotifyAthan}
}
