package model

// EventKind tells whether a next event is the call (athan) or the
// congregation start (iqama).
type EventKind string

const (
	KindAnnouncement EventKind = "announcement"
	KindAssembly     EventKind = "assembly"
)

// Prayer slot names, in day order.
const (
	Fajr    = "Fajr"
	Sunrise = "Sunrise"
	Dhuhr   = "Dhuhr"
	Asr     = "Asr"
	Maghrib = "Maghrib"
	Isha    = "Isha"
)

type NextEvent struct {
	Name     string    `json:"name"`     // “Fajr”, “Dhuhr”, …
	Kind     EventKind `json:"kind"`     // announcement or assembly
	Time     string    `json:"time"`     // “05:12”
	Display  string    `json:"display"`  // “05:12 AM”
	Tomorrow bool      `json:"tomorrow"` // rolled over past Isha
}
