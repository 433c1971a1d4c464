package compliance

import (
	"fmt"
	"strings"
	"time"
)

// TimeWindowResult is the outcome of evaluating a scheduled send time.
type TimeWindowResult struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	LocalTime time.Time `json:"local_time"`
	Timezone  string    `json:"timezone"`
}

// ResolveLocation loads the IANA zone for timezone, using DefaultTimezone
// when empty and UTC when the name cannot be loaded.
func ResolveLocation(timezone string) (*time.Location, string) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC, "UTC"
	}
	return loc, timezone
}

// CheckTimeWindow renders scheduled in the tenant's local time and checks it
// against the configured hours and weekdays. Hours are start-inclusive,
// end-exclusive.
func CheckTimeWindow(cfg *Config, scheduled time.Time, timezone string) TimeWindowResult {
	loc, tzName := ResolveLocation(timezone)
	local := scheduled.In(loc)
	hour := local.Hour()

	result := TimeWindowResult{Allowed: true, LocalTime: local, Timezone: tzName}

	if !cfg.Window().Contains(hour) {
		result.Allowed = false
		result.Reason = fmt.Sprintf("Scheduled time %02d:%02d is outside allowed hours (%02d:00-%02d:00 %s)",
			local.Hour(), local.Minute(), cfg.AllowedStartHour, cfg.AllowedEndHour, tzName)
		return result
	}

	if len(cfg.AllowedDaysOfWeek) > 0 && !dayAllowed(local.Weekday(), cfg.AllowedDaysOfWeek) {
		result.Allowed = false
		result.Reason = fmt.Sprintf("Scheduled day %s is not an allowed sending day (%s)",
			local.Weekday(), strings.Join(cfg.AllowedDaysOfWeek, ", "))
	}

	return result
}

func dayAllowed(day time.Weekday, allowed []string) bool {
	for _, d := range allowed {
		if strings.EqualFold(strings.TrimSpace(d), day.String()) {
			return true
		}
	}
	return false
}
