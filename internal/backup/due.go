package backup

import "time"

// DueStatus reports whether a run is currently due and when the next one is.
type DueStatus struct {
	IsDue     bool
	NextDueAt *time.Time
}

// isDueNow decides whether a run is due, purely from its three inputs.
// Disabled settings are never due. A missing or unparsable last-run timestamp
// means a run is due immediately.
func isDueNow(settings Settings, state State, now time.Time) DueStatus {
	if !settings.Enabled {
		return DueStatus{}
	}

	if state.LastRunAt == nil {
		return DueStatus{IsDue: true, NextDueAt: &now}
	}

	lastRun, err := time.Parse(time.RFC3339, *state.LastRunAt)
	if err != nil {
		return DueStatus{IsDue: true, NextDueAt: &now}
	}

	nextDue := lastRun.Add(time.Duration(settings.IntervalMinutes) * time.Minute)
	return DueStatus{
		IsDue:     !now.Before(nextDue),
		NextDueAt: &nextDue,
	}
}
