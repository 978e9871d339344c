package backup

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lease is the ephemeral mutual-exclusion token serializing backup runs. It
// lives in the shared config slot for the duration of one run and is reclaimed
// by TTL expiry if its owner dies without releasing it.
type Lease struct {
	LeaseID      string    `json:"leaseId"`
	AcquiredAtMs int64     `json:"acquiredAtMs"`
	ExpiresAtMs  int64     `json:"expiresAtMs"`
	Reason       RunReason `json:"reason"`
}

// acquiredLease pairs a lease with its exact serialized form; release compares
// the slot against the serialized bytes so it never deletes a lease it does
// not own.
type acquiredLease struct {
	lease      Lease
	serialized string
}

// LeaseManager provides non-blocking mutual exclusion over the lease slot
// using insert-if-absent and compare-and-swap. At most one non-expired lease
// exists at any instant.
type LeaseManager struct {
	config ConfigStore
	ttl    time.Duration
}

func NewLeaseManager(config ConfigStore, ttl time.Duration) *LeaseManager {
	return &LeaseManager{config: config, ttl: ttl}
}

// Acquire attempts to take the lease. It returns nil with no error when
// another run legitimately holds it. An expired or corrupt slot value is
// treated as free and replaced via compare-and-swap; losing that swap to a
// concurrent acquirer also reports the lease as held.
func (m *LeaseManager) Acquire(reason RunReason, now time.Time) (*acquiredLease, error) {
	nowMs := now.UnixMilli()
	lease := Lease{
		LeaseID:      uuid.NewString(),
		AcquiredAtMs: nowMs,
		ExpiresAtMs:  nowMs + m.ttl.Milliseconds(),
		Reason:       reason,
	}
	serialized, err := json.Marshal(lease)
	if err != nil {
		return nil, err
	}

	inserted, err := m.config.InsertIfAbsent(leaseKey, string(serialized))
	if err != nil {
		return nil, err
	}
	if inserted {
		return &acquiredLease{lease: lease, serialized: string(serialized)}, nil
	}

	currentRaw, ok, err := m.config.Get(leaseKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Slot freed between the insert attempt and the read; retry once.
		inserted, err := m.config.InsertIfAbsent(leaseKey, string(serialized))
		if err != nil {
			return nil, err
		}
		if inserted {
			return &acquiredLease{lease: lease, serialized: string(serialized)}, nil
		}
		return nil, nil
	}

	if current := parseLease(currentRaw); current != nil && current.ExpiresAtMs > nowMs {
		return nil, nil
	}

	swapped, err := m.config.CompareAndSwap(leaseKey, currentRaw, string(serialized))
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, nil
	}
	return &acquiredLease{lease: lease, serialized: string(serialized)}, nil
}

// Release deletes the slot only while it still holds exactly the lease being
// released. A lease already reclaimed by a TTL takeover is left alone.
func (m *LeaseManager) Release(acquired *acquiredLease) error {
	current, ok, err := m.config.Get(leaseKey)
	if err != nil {
		return err
	}
	if ok && current == acquired.serialized {
		return m.config.Delete(leaseKey)
	}
	return nil
}

// IsHeld reports whether a live lease occupies the slot. An expired or corrupt
// value it observes is garbage-collected, guarded by a re-read so a lease
// acquired concurrently is not swept away.
func (m *LeaseManager) IsHeld(now time.Time) (bool, error) {
	raw, ok, err := m.config.Get(leaseKey)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if lease := parseLease(raw); lease != nil && lease.ExpiresAtMs > now.UnixMilli() {
		return true, nil
	}

	latest, ok, err := m.config.Get(leaseKey)
	if err != nil {
		return false, err
	}
	if ok && latest == raw {
		if err := m.config.Delete(leaseKey); err != nil {
			return false, err
		}
	}
	return false, nil
}

// parseLease returns nil for anything that is not a complete, well-formed
// lease; callers treat nil as a stale slot.
func parseLease(raw string) *Lease {
	var lease Lease
	if err := json.Unmarshal([]byte(raw), &lease); err != nil {
		return nil
	}
	if lease.LeaseID == "" || lease.AcquiredAtMs == 0 || lease.ExpiresAtMs == 0 {
		return nil
	}
	if lease.Reason != ReasonManual && lease.Reason != ReasonScheduled {
		return nil
	}
	return &lease
}
