package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the human form accepted by set-timer.
const Layout = "DD/MM/YYYY_HH:MM AM|PM"

var targetRE = regexp.MustCompile(`(?i)^(\d{1,2})/(\d{1,2})/(\d{4})_(\d{1,2}):(\d{2})\s*(AM|PM)$`)

// ParseTarget reads raw in Layout as a wall-clock time in loc.  Dates
// that do not exist on the calendar (31/02, 13/13) are rejected instead
// of rolling over.
func ParseTarget(raw string, loc *time.Location) (time.Time, bool) {
	m := targetRE.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	if hour < 1 || hour > 12 || minute > 59 {
		return time.Time{}, false
	}
	switch strings.ToUpper(m[6]) {
	case "PM":
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

// FormatRemaining renders d as "Nd Nh Nm", flooring each unit.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}
