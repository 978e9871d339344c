package backup

import (
	"testing"
	"time"
)

func TestIsDueNowDisabled(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	due := isDueNow(Settings{Enabled: false, IntervalMinutes: 60}, State{}, now)
	if due.IsDue {
		t.Error("disabled settings must never be due")
	}
	if due.NextDueAt != nil {
		t.Errorf("nextDueAt = %v, want nil", due.NextDueAt)
	}
}

func TestIsDueNowNeverRun(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	due := isDueNow(Settings{Enabled: true, IntervalMinutes: 60}, State{}, now)
	if !due.IsDue {
		t.Error("never-run enabled backup must be due immediately")
	}
	if due.NextDueAt == nil || !due.NextDueAt.Equal(now) {
		t.Errorf("nextDueAt = %v, want now", due.NextDueAt)
	}
}

func TestIsDueNowUnparsableLastRun(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	bad := "sometime yesterday"

	due := isDueNow(Settings{Enabled: true, IntervalMinutes: 60}, State{LastRunAt: &bad}, now)
	if !due.IsDue {
		t.Error("unparsable last-run must be treated as due")
	}
}

func TestIsDueNowInterval(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	settings := Settings{Enabled: true, IntervalMinutes: 60}

	recent := now.Add(-30 * time.Minute).Format(time.RFC3339)
	due := isDueNow(settings, State{LastRunAt: &recent}, now)
	if due.IsDue {
		t.Error("half an interval in must not be due")
	}
	wantNext := now.Add(30 * time.Minute)
	if due.NextDueAt == nil || !due.NextDueAt.Equal(wantNext) {
		t.Errorf("nextDueAt = %v, want %v", due.NextDueAt, wantNext)
	}

	// Exactly at the boundary counts as due.
	boundary := now.Add(-60 * time.Minute).Format(time.RFC3339)
	if !isDueNow(settings, State{LastRunAt: &boundary}, now).IsDue {
		t.Error("exact interval boundary must be due")
	}

	stale := now.Add(-3 * time.Hour).Format(time.RFC3339)
	if !isDueNow(settings, State{LastRunAt: &stale}, now).IsDue {
		t.Error("past the interval must be due")
	}
}
