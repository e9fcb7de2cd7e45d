package scheduler

import (
	"fmt"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// threeWeeklyInterval is 7/3 days rounded to whole days.
const threeWeeklyInterval = 2 * 24 * time.Hour

// ParsePostingTime reads an "HH:MM" time of day.
func ParsePostingTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid posting time %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// NextVideoAt computes when a series should run next. All arithmetic is in UTC.
//
// Every frequency except hourly starts from the next occurrence of
// postingTime strictly after now (today's slot, or tomorrow's once today's
// has passed), then:
//
//   - daily, twice_daily: that occurrence.
//   - weekly: that occurrence plus 7 days.
//   - three_weekly: that occurrence plus 2 days.
//
// hourly is the next occurrence of postingTime's minute strictly after now.
//
// The result is always strictly after now.
func NextVideoAt(freq models.PostingFrequency, postingTime string, now time.Time) (time.Time, error) {
	hour, minute, err := ParsePostingTime(postingTime)
	if err != nil {
		return time.Time{}, err
	}

	now = now.UTC()
	y, m, d := now.Date()
	slot := time.Date(y, m, d, hour, minute, 0, 0, time.UTC)

	if freq == models.FrequencyHourly {
		next := time.Date(y, m, d, now.Hour(), minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(time.Hour)
		}
		return next, nil
	}

	if !slot.After(now) {
		slot = slot.AddDate(0, 0, 1)
	}

	switch freq {
	case models.FrequencyWeekly:
		return slot.AddDate(0, 0, 7), nil
	case models.FrequencyThreeWeekly:
		return slot.Add(threeWeeklyInterval), nil
	case models.FrequencyDaily, models.FrequencyTwiceDaily:
		return slot, nil
	default:
		return time.Time{}, fmt.Errorf("unknown posting frequency %q", freq)
	}
}
