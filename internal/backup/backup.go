// Package backup orchestrates vault snapshots: it persists operator policy and
// run state in the shared config table, serializes concurrent triggers through a
// compare-and-swap lease, dumps the relational data and attachment blobs, and
// uploads the snapshot to an S3-compatible or WebDAV remote. The manifest is
// written last; its presence at a snapshot location is the proof the snapshot
// is complete.
package backup

import "time"

const (
	settingsKey = "backup.settings"
	stateKey    = "backup.state"
	leaseKey    = "backup.lease"
)

// ProviderType names a remote object store integration.
type ProviderType string

const (
	ProviderS3     ProviderType = "s3"
	ProviderWebDAV ProviderType = "webdav"
)

// RunReason records what triggered a run.
type RunReason string

const (
	ReasonManual    RunReason = "manual"
	ReasonScheduled RunReason = "scheduled"
)

// RunStatus is the recorded outcome of a run attempt.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusFailure RunStatus = "failure"
)

// Limits are the capacity and timing policy constants for the subsystem.
type Limits struct {
	MinIntervalMinutes     int
	MaxIntervalMinutes     int
	DefaultIntervalMinutes int
	MaxPathPrefixLen       int
	MaxPayloadBytes        int
	MaxErrorLen            int
	LeaseTTL               time.Duration
	RunTimeout             time.Duration
}

// DefaultLimits returns the production policy.
func DefaultLimits() Limits {
	return Limits{
		MinIntervalMinutes:     5,
		MaxIntervalMinutes:     43200,
		DefaultIntervalMinutes: 1440,
		MaxPathPrefixLen:       200,
		MaxPayloadBytes:        64 << 20,
		MaxErrorLen:            500,
		LeaseTTL:               15 * time.Minute,
		RunTimeout:             10 * time.Minute,
	}
}

// ConfigStore is the shared key/value namespace holding settings, state, and
// the run lease. All four operations must be atomic relative to each other.
type ConfigStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	InsertIfAbsent(key, value string) (bool, error)
	CompareAndSwap(key, expected, value string) (bool, error)
	Delete(key string) error
}

// AuditLog receives the subsystem's audit records.
type AuditLog interface {
	Append(action, targetType, targetID, actorIP, detail string) error
}
