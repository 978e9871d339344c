package backup

import "testing"

func TestStateLoadMissing(t *testing.T) {
	store := NewStateStore(newMemConfig())

	state, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.LastRunAt != nil || state.LastStatus != nil {
		t.Errorf("want zero state, got %+v", state)
	}
}

func TestStateRoundTrip(t *testing.T) {
	store := NewStateStore(newMemConfig())

	runAt := "2026-02-01T03:00:00Z"
	reason := ReasonScheduled
	status := StatusSuccess
	provider := ProviderS3
	size := int64(4096)
	if err := store.Save(State{
		LastRunAt:     &runAt,
		LastRunReason: &reason,
		LastStatus:    &status,
		LastSuccessAt: &runAt,
		LastProvider:  &provider,
		LastSizeBytes: &size,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.LastRunAt == nil || *got.LastRunAt != runAt {
		t.Errorf("lastRunAt = %v", got.LastRunAt)
	}
	if got.LastRunReason == nil || *got.LastRunReason != ReasonScheduled {
		t.Errorf("lastRunReason = %v", got.LastRunReason)
	}
	if got.LastStatus == nil || *got.LastStatus != StatusSuccess {
		t.Errorf("lastStatus = %v", got.LastStatus)
	}
	if got.LastSizeBytes == nil || *got.LastSizeBytes != 4096 {
		t.Errorf("lastSizeBytes = %v", got.LastSizeBytes)
	}
	if got.LastError != nil || got.LastFailureAt != nil {
		t.Errorf("unexpected failure fields: %+v", got)
	}
}

func TestStateSelfHealsCorruptRecord(t *testing.T) {
	config := newMemConfig()
	store := NewStateStore(config)

	config.Set("backup.state", "{{{")
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.LastRunAt != nil {
		t.Errorf("want zero state, got %+v", got)
	}
}

func TestStateSalvagesValidFields(t *testing.T) {
	config := newMemConfig()
	store := NewStateStore(config)

	// A corrupt lastSizeBytes must not erase lastRunAt: losing it would reset
	// the due schedule and trigger an immediate run.
	config.Set("backup.state", `{"lastRunAt":"2026-02-01T03:00:00Z","lastStatus":"success","lastSizeBytes":"big"}`)
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.LastRunAt == nil || *got.LastRunAt != "2026-02-01T03:00:00Z" {
		t.Errorf("lastRunAt = %v, want salvaged from corrupt sibling", got.LastRunAt)
	}
	if got.LastStatus == nil || *got.LastStatus != StatusSuccess {
		t.Errorf("lastStatus = %v, want salvaged", got.LastStatus)
	}
	if got.LastSizeBytes != nil {
		t.Errorf("lastSizeBytes = %v, want nil for the corrupt field", got.LastSizeBytes)
	}
}

func TestStateDiscardsOutOfDomainEnums(t *testing.T) {
	config := newMemConfig()
	store := NewStateStore(config)

	config.Set("backup.state", `{"lastRunAt":"2026-02-01T03:00:00Z","lastRunReason":"cron","lastStatus":"partial","lastProvider":"ftp"}`)
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.LastRunAt == nil {
		t.Error("valid field should survive")
	}
	if got.LastRunReason != nil || got.LastStatus != nil || got.LastProvider != nil {
		t.Errorf("out-of-domain enums should be discarded, got %+v", got)
	}
}
