// Package prayer computes the next upcoming prayer event of a daily table
// and the live countdown to it.
package prayer

import (
	"fmt"
	"time"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
)

// Next returns the next event of table relative to now's time of day.
// Once every same-day slot has passed it rolls over to the table's
// tomorrow Fajr. It returns false when nothing is left to count down to.
//
// now must already be in the organization's timezone.
func Next(table *model.DailyTable, now time.Time) (*model.NextEvent, bool) {
	if table == nil {
		return nil, false
	}
	current := now.Format("15:04")

	for _, slot := range table.Slots() {
		announcement, ok := clock(slot.Times.Announcement)
		if !ok {
			continue
		}
		// zero-padded HH:MM compares correctly as strings within one day
		if announcement > current {
			return event(slot.Name, model.KindAnnouncement, announcement, false), true
		}
		if slot.Name == model.Sunrise {
			continue
		}
		assembly, ok := clock(slot.Times.Assembly)
		if ok && assembly != announcement && assembly > current {
			return event(slot.Name, model.KindAssembly, assembly, false), true
		}
	}

	if tomorrow, ok := clock(table.TomorrowFajr.Announcement); ok {
		return event(model.Fajr, model.KindAnnouncement, tomorrow, true), true
	}
	return nil, false
}

func event(name string, kind model.EventKind, hhmm string, tomorrow bool) *model.NextEvent {
	return &model.NextEvent{
		Name:     name,
		Kind:     kind,
		Time:     hhmm,
		Display:  Display(hhmm),
		Tomorrow: tomorrow,
	}
}

// Countdown returns the time left until the next occurrence of hhmm,
// today if still ahead of now and tomorrow otherwise, rendered as
// "Hh Mm Ss" with the hour part omitted when zero.
func Countdown(hhmm string, now time.Time) (time.Duration, string, error) {
	h, m, err := parseClock(hhmm)
	if err != nil {
		return 0, "", err
	}
	now = now.Truncate(time.Second)

	target := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !target.After(now) {
		target = time.Date(now.Year(), now.Month(), now.Day()+1, h, m, 0, 0, now.Location())
	}
	remaining := target.Sub(now)
	return remaining, FormatDuration(remaining), nil
}

// FormatDuration renders d as "Hh Mm Ss", dropping hours when zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	hours, minutes, seconds := total/3600, (total%3600)/60, total%60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// Display converts "17:30" to "05:30 PM".
func Display(hhmm string) string {
	h, m, err := parseClock(hhmm)
	if err != nil {
		return hhmm
	}
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%02d:%02d %s", h, m, period)
}

// clock normalizes a stored time to zero-padded HH:MM.
func clock(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	h, m, err := parseClock(*s)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

func parseClock(s string) (int, int, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("invalid time of day %q", s)
}
