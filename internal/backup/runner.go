package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VanceHud/VanceNodeWarden/internal/blob"
	"github.com/VanceHud/VanceNodeWarden/internal/model"
)

const auditTargetType = "backup"

// AttachmentLister enumerates the attachment references a run must copy.
type AttachmentLister interface {
	ListRefs() ([]model.AttachmentRef, error)
}

// Overview is the admin-facing status snapshot: policy, last run, liveness.
type Overview struct {
	Settings Settings       `json:"settings"`
	State    State          `json:"state"`
	Status   OverviewStatus `json:"status"`
}

type OverviewStatus struct {
	IsDue              bool     `json:"isDue"`
	NextDueAt          *string  `json:"nextDueAt"`
	IsRunning          bool     `json:"isRunning"`
	ProviderConfigured bool     `json:"providerConfigured"`
	ProviderMissingEnv []string `json:"providerMissingEnv"`
}

// RunResult is what every trigger gets back. Contention outcomes are reported
// as skipped with a reason, never as errors.
type RunResult struct {
	Status     string    `json:"status"` // success, failure, or skipped
	Reason     RunReason `json:"reason"`
	SkipReason string    `json:"skipReason,omitempty"`
	Settings   Settings  `json:"settings"`
	State      State     `json:"state"`
}

const (
	SkipDisabled       = "disabled"
	SkipNotDue         = "not_due"
	SkipAlreadyRunning = "already_running"
)

// Event is a run lifecycle notification for the admin console.
type Event struct {
	Action string    `json:"action"` // started, success, failure, skipped
	Reason RunReason `json:"reason"`
	Detail string    `json:"detail,omitempty"`
}

// EventFunc receives lifecycle events; may be nil.
type EventFunc func(Event)

// Runner composes the stores, lease, snapshot builder, and providers into one
// guarded, time-bounded, audited backup operation.
type Runner struct {
	db          *sql.DB
	settings    *SettingsStore
	state       *StateStore
	leases      *LeaseManager
	attachments AttachmentLister
	blobs       blob.Store
	audit       AuditLog
	providers   map[ProviderType]Provider
	limits      Limits
	logger      *slog.Logger
	onEvent     EventFunc
	now         func() time.Time
}

// NewRunner wires the orchestrator. The run timeout must be shorter than the
// lease TTL, otherwise a still-running operation's lease could be reclaimed
// while it is writing.
func NewRunner(db *sql.DB, config ConfigStore, attachments AttachmentLister, blobs blob.Store,
	audit AuditLog, providers map[ProviderType]Provider, limits Limits,
	logger *slog.Logger, onEvent EventFunc) (*Runner, error) {

	if limits.RunTimeout >= limits.LeaseTTL {
		return nil, fmt.Errorf("backup: run timeout (%s) must be shorter than lease TTL (%s)",
			limits.RunTimeout, limits.LeaseTTL)
	}

	return &Runner{
		db:          db,
		settings:    NewSettingsStore(config, limits),
		state:       NewStateStore(config),
		leases:      NewLeaseManager(config, limits.LeaseTTL),
		attachments: attachments,
		blobs:       blobs,
		audit:       audit,
		providers:   providers,
		limits:      limits,
		logger:      logger,
		onEvent:     onEvent,
		now:         time.Now,
	}, nil
}

// Overview reports settings, last-run state, and live status. Reading it has
// one side effect: an expired lease it observes is garbage-collected.
func (r *Runner) Overview(ctx context.Context) (Overview, error) {
	now := r.now()

	settings, err := r.settings.Load()
	if err != nil {
		return Overview{}, err
	}
	state, err := r.state.Load()
	if err != nil {
		return Overview{}, err
	}
	isRunning, err := r.leases.IsHeld(now)
	if err != nil {
		return Overview{}, err
	}

	due := isDueNow(settings, state, now)
	missing := r.providers[settings.Provider].MissingEnv()

	var nextDueAt *string
	if due.NextDueAt != nil {
		s := due.NextDueAt.UTC().Format(time.RFC3339)
		nextDueAt = &s
	}

	return Overview{
		Settings: settings,
		State:    state,
		Status: OverviewStatus{
			IsDue:              due.IsDue,
			NextDueAt:          nextDueAt,
			IsRunning:          isRunning,
			ProviderConfigured: len(missing) == 0,
			ProviderMissingEnv: missing,
		},
	}, nil
}

// UpdateSettings merges a validated patch onto the current settings, persists
// the result, audits the change, and returns the fresh overview.
func (r *Runner) UpdateSettings(ctx context.Context, patch SettingsPatch, actorIP string) (Overview, error) {
	current, err := r.settings.Load()
	if err != nil {
		return Overview{}, err
	}

	next := patch.apply(current)
	if err := r.settings.Save(next); err != nil {
		return Overview{}, err
	}

	detail, _ := json.Marshal(next)
	r.appendAudit("admin.backup.settings.update", actorIP, string(detail))

	return r.Overview(ctx)
}

// RunNow starts a run immediately, bypassing the enabled/due gating. The lease
// still applies.
func (r *Runner) RunNow(ctx context.Context, actorIP string) (RunResult, error) {
	return r.run(ctx, ReasonManual, actorIP, true)
}

// RunScheduled starts a run only when the policy says one is due.
func (r *Runner) RunScheduled(ctx context.Context) (RunResult, error) {
	return r.run(ctx, ReasonScheduled, "", false)
}

func (r *Runner) run(ctx context.Context, reason RunReason, actorIP string, force bool) (RunResult, error) {
	now := r.now()

	settings, err := r.settings.Load()
	if err != nil {
		return RunResult{}, err
	}
	previousState, err := r.state.Load()
	if err != nil {
		return RunResult{}, err
	}

	if !force {
		if !settings.Enabled {
			return RunResult{Status: "skipped", Reason: reason, SkipReason: SkipDisabled,
				Settings: settings, State: previousState}, nil
		}
		if due := isDueNow(settings, previousState, now); !due.IsDue {
			return RunResult{Status: "skipped", Reason: reason, SkipReason: SkipNotDue,
				Settings: settings, State: previousState}, nil
		}
	}

	acquired, err := r.leases.Acquire(reason, now)
	if err != nil {
		return RunResult{}, err
	}
	if acquired == nil {
		r.emit(Event{Action: "skipped", Reason: reason, Detail: SkipAlreadyRunning})
		return RunResult{Status: "skipped", Reason: reason, SkipReason: SkipAlreadyRunning,
			Settings: settings, State: previousState}, nil
	}
	defer func() {
		if err := r.leases.Release(acquired); err != nil {
			r.logger.Error("release backup lease", "error", err)
		}
	}()

	nextState, runErr := r.attempt(ctx, settings, previousState, reason, actorIP)
	if runErr != nil {
		message := truncateError(runErr, r.limits.MaxErrorLen)
		failedAt := r.now().UTC().Format(time.RFC3339)

		failedState := previousState
		failedState.LastRunAt = &failedAt
		failedState.LastRunReason = &reason
		status := StatusFailure
		failedState.LastStatus = &status
		failedState.LastFailureAt = &failedAt
		failedState.LastError = &message
		failedState.LastProvider = &settings.Provider
		failedState.LastAttachmentCount = nil
		failedState.LastAttachmentBytes = nil

		if err := r.state.Save(failedState); err != nil {
			r.logger.Error("save backup failure state", "error", err)
		}
		r.appendAudit("admin.backup.run.failure", actorIP, auditDetail(map[string]any{
			"reason":   reason,
			"provider": settings.Provider,
			"error":    message,
		}))
		r.logger.Error("backup run failed", "reason", reason, "provider", settings.Provider, "error", message)
		r.emit(Event{Action: "failure", Reason: reason, Detail: message})

		return RunResult{Status: "failure", Reason: reason, Settings: settings, State: failedState}, nil
	}

	r.emit(Event{Action: "success", Reason: reason})
	return RunResult{Status: "success", Reason: reason, Settings: settings, State: nextState}, nil
}

// attempt performs the leased portion of a run and returns the success state.
// Any error aborts the run; the caller records the failure.
func (r *Runner) attempt(ctx context.Context, settings Settings, previousState State,
	reason RunReason, actorIP string) (State, error) {

	provider := r.providers[settings.Provider]
	if missing := provider.MissingEnv(); len(missing) > 0 {
		return State{}, fmt.Errorf("backup provider is not configured: %s", strings.Join(missing, ", "))
	}

	r.appendAudit("admin.backup.run.start", actorIP, auditDetail(map[string]any{
		"reason":             reason,
		"provider":           settings.Provider,
		"includeAttachments": true,
	}))
	r.emit(Event{Action: "started", Reason: reason})

	started := r.now()
	startedAt := started.UTC().Format(time.RFC3339)
	prefix := objectKey(settings.PathPrefix, snapshotFolder(startedAt))
	databaseObjectKey := prefix + "/database.json"
	attachmentsPrefix := prefix + "/attachments"
	manifestObjectKey := prefix + "/manifest.json"

	payload, err := buildDatabasePayload(ctx, r.db, r.limits, started)
	if err != nil {
		return State{}, err
	}
	if err := r.ensureWithinTimeout(started, "database snapshot"); err != nil {
		return State{}, err
	}

	databaseUpload, err := provider.Upload(ctx, UploadInput{
		ObjectKey:   databaseObjectKey,
		ContentType: "application/json",
		Body:        payload,
	})
	if err != nil {
		return State{}, err
	}
	if err := r.ensureWithinTimeout(started, "database upload"); err != nil {
		return State{}, err
	}

	refs, err := r.attachments.ListRefs()
	if err != nil {
		return State{}, err
	}
	attachmentCount, attachmentBytes, err := r.uploadAttachments(ctx, provider, prefix, refs, started)
	if err != nil {
		return State{}, err
	}
	if err := r.ensureWithinTimeout(started, "manifest build"); err != nil {
		return State{}, err
	}

	manifestPayload, err := buildManifestPayload(settings.Provider, reason, r.now(),
		databaseObjectKey, len(payload), attachmentsPrefix, attachmentCount, attachmentBytes)
	if err != nil {
		return State{}, err
	}

	manifestUpload, err := provider.Upload(ctx, UploadInput{
		ObjectKey:   manifestObjectKey,
		ContentType: "application/json",
		Body:        manifestPayload,
	})
	if err != nil {
		return State{}, err
	}
	if err := r.ensureWithinTimeout(started, "manifest upload"); err != nil {
		return State{}, err
	}

	totalBytes := int64(len(payload)) + attachmentBytes + int64(len(manifestPayload))
	finishedAt := r.now().UTC().Format(time.RFC3339)
	durationMs := r.now().Sub(started).Milliseconds()

	nextState := previousState
	nextState.LastRunAt = &finishedAt
	nextState.LastRunReason = &reason
	status := StatusSuccess
	nextState.LastStatus = &status
	nextState.LastSuccessAt = &finishedAt
	nextState.LastError = nil
	nextState.LastProvider = &manifestUpload.Provider
	nextState.LastFileName = &manifestObjectKey
	nextState.LastLocation = &manifestUpload.Location
	nextState.LastSizeBytes = &totalBytes
	count := int64(attachmentCount)
	nextState.LastAttachmentCount = &count
	nextState.LastAttachmentBytes = &attachmentBytes
	nextState.LastDurationMs = &durationMs

	if err := r.state.Save(nextState); err != nil {
		return State{}, err
	}

	r.appendAudit("admin.backup.run.success", actorIP, auditDetail(map[string]any{
		"reason":            reason,
		"provider":          manifestUpload.Provider,
		"manifestObjectKey": manifestObjectKey,
		"manifestLocation":  manifestUpload.Location,
		"databaseObjectKey": databaseObjectKey,
		"databaseLocation":  databaseUpload.Location,
		"attachmentCount":   attachmentCount,
		"attachmentBytes":   attachmentBytes,
		"sizeBytes":         totalBytes,
		"durationMs":        durationMs,
	}))
	r.logger.Info("backup run succeeded", "reason", reason, "provider", manifestUpload.Provider,
		"manifest", manifestObjectKey, "attachments", attachmentCount, "bytes", totalBytes,
		"duration_ms", durationMs)

	return nextState, nil
}

// uploadAttachments copies every referenced blob to the snapshot location, in
// enumeration order. A referenced blob that cannot be read fails the run; a
// snapshot with silently missing attachments would be worse than no snapshot.
func (r *Runner) uploadAttachments(ctx context.Context, provider Provider, prefix string,
	refs []model.AttachmentRef, started time.Time) (count int, totalBytes int64, err error) {

	for _, ref := range refs {
		if err := r.ensureWithinTimeout(started, "attachment upload"); err != nil {
			return 0, 0, err
		}

		data, contentType, err := r.blobs.Get(ctx, ref.BlobKey())
		if err != nil {
			return 0, 0, fmt.Errorf("read attachment %s: %w", ref.BlobKey(), err)
		}

		_, err = provider.Upload(ctx, UploadInput{
			ObjectKey:   prefix + "/attachments/" + ref.CipherID + "/" + ref.AttachmentID,
			ContentType: contentType,
			Body:        data,
		})
		if err != nil {
			return 0, 0, err
		}

		count++
		totalBytes += int64(len(data))
	}
	return count, totalBytes, nil
}

func (r *Runner) ensureWithinTimeout(started time.Time, stage string) error {
	if r.now().Sub(started) > r.limits.RunTimeout {
		return fmt.Errorf("backup run exceeded timeout during %s", stage)
	}
	return nil
}

func (r *Runner) appendAudit(action, actorIP, detail string) {
	if err := r.audit.Append(action, auditTargetType, "", actorIP, detail); err != nil {
		r.logger.Error("append audit record", "action", action, "error", err)
	}
}

func (r *Runner) emit(event Event) {
	if r.onEvent != nil {
		r.onEvent(event)
	}
}

func auditDetail(fields map[string]any) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncateError(err error, maxLen int) string {
	message := err.Error()
	if len(message) > maxLen {
		return message[:maxLen-3] + "..."
	}
	return message
}
