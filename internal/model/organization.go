package model

import "time"

// Organization is a read-only snapshot of a masjid from the directory.
type Organization struct {
	ID        string  `db:"id"        json:"id"`
	Name      string  `db:"name"      json:"name"`
	Address   string  `db:"address"   json:"address"`
	Latitude  float64 `db:"latitude"  json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	Timezone  string  `db:"timezone"  json:"timezone"`
}

// Location loads the organization's IANA timezone, falling back to UTC
// when none is set.
func (o *Organization) Location() (*time.Location, error) {
	if o.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(o.Timezone)
}
