package gtfsrt

import (
	"fmt"
	"strconv"
	"time"
)

const (
	secondsPerDay   = 24 * 60 * 60
	sameDayHorizon  = 12 * 60 * 60
	operatingDayFmt = "2006-01-02"
)

// StartTime returns the GTFS start time of the trip an event belongs to.
// Trips started on the previous service day are reported past 24:00, e.g.
// a 03:45 departure belonging to yesterday's schedule becomes "27:45:00".
func StartTime(tsi int64, operatingDay, scheduledStart string, loc *time.Location) (string, error) {
	scheduled, err := parseHHMM(scheduledStart)
	if err != nil {
		return "", err
	}
	local := time.Unix(tsi, 0).In(loc)
	localSeconds := local.Hour()*3600 + local.Minute()*60

	if operatingDay == local.Format(operatingDayFmt) && localSeconds-scheduled < sameDayHorizon {
		return formatTime(scheduled), nil
	}
	if scheduled <= localSeconds {
		scheduled += secondsPerDay
	}
	return formatTime(scheduled), nil
}

func parseHHMM(s string) (int, error) {
	if len(s) < 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid start time %q", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid start time %q: %w", s, err)
	}
	m, err := strconv.Atoi(s[3:5])
	if err != nil {
		return 0, fmt.Errorf("invalid start time %q: %w", s, err)
	}
	return h*3600 + m*60, nil
}

// formatTime formats seconds since service-day start as HH:MM:00. Hours may exceed 23.
func formatTime(seconds int) string {
	return fmt.Sprintf("%02d:%02d:00", seconds/3600, (seconds%3600)/60)
}
