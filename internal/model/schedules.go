package model

// EventTimes holds the athan time and an optional distinct iqama time for
// one slot. Values are zero-padded "HH:MM", local to the organization.
type EventTimes struct {
	Announcement *string `json:"announcement"`
	Assembly     *string `json:"assembly,omitempty"`
}

// DailyTable is one organization's posted prayer times for one date.
// TomorrowFajr is only used once every slot of the day has passed.
type DailyTable struct {
	OrgID        string     `json:"org_id"`
	Date         string     `json:"date"` // YYYY-MM-DD
	Fajr         EventTimes `json:"fajr"`
	Sunrise      EventTimes `json:"sunrise"`
	Dhuhr        EventTimes `json:"dhuhr"`
	Asr          EventTimes `json:"asr"`
	Maghrib      EventTimes `json:"maghrib"`
	Isha         EventTimes `json:"isha"`
	TomorrowFajr EventTimes `json:"tomorrow_fajr"`
}

// Slot is a named entry of a DailyTable.
type Slot struct {
	Name  string
	Times EventTimes
}

// Slots returns the six same-day slots in day order.
func (t *DailyTable) Slots() []Slot {
	return []Slot{
		{Name: Fajr, Times: t.Fajr},
		{Name: Sunrise, Times: t.Sunrise},
		{Name: Dhuhr, Times: t.Dhuhr},
		{Name: Asr, Times: t.Asr},
		{Name: Maghrib, Times: t.Maghrib},
		{Name: Isha, Times: t.Isha},
	}
}

// DailyTableRow is the flat database shape of a DailyTable.
type DailyTableRow struct {
	OrgID             string  `db:"org_id"`
	Date              string  `db:"date"`
	FajrAthan         *string `db:"fajr_athan"`
	FajrIqama         *string `db:"fajr_iqama"`
	Sunrise           *string `db:"sunrise"`
	DhuhrAthan        *string `db:"dhuhr_athan"`
	DhuhrIqama        *string `db:"dhuhr_iqama"`
	AsrAthan          *string `db:"asr_athan"`
	AsrIqama          *string `db:"asr_iqama"`
	MaghribAthan      *string `db:"maghrib_athan"`
	MaghribIqama      *string `db:"maghrib_iqama"`
	IshaAthan         *string `db:"isha_athan"`
	IshaIqama         *string `db:"isha_iqama"`
	TomorrowFajrAthan *string `db:"tomorrow_fajr_athan"`
	TomorrowFajrIqama *string `db:"tomorrow_fajr_iqama"`
}

func (r DailyTableRow) Table() DailyTable {
	return DailyTable{
		OrgID:        r.OrgID,
		Date:         r.Date,
		Fajr:         EventTimes{Announcement: r.FajrAthan, Assembly: r.FajrIqama},
		Sunrise:      EventTimes{Announcement: r.Sunrise},
		Dhuhr:        EventTimes{Announcement: r.DhuhrAthan, Assembly: r.DhuhrIqama},
		Asr:          EventTimes{Announcement: r.AsrAthan, Assembly: r.AsrIqama},
		Maghrib:      EventTimes{Announcement: r.MaghribAthan, Assembly: r.MaghribIqama},
		Isha:         EventTimes{Announcement: r.IshaAthan, Assembly: r.IshaIqama},
		TomorrowFajr: EventTimes{Announcement: r.TomorrowFajrAthan, Assembly: r.TomorrowFajrIqama},
	}
}
