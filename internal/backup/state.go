package backup

import (
	"encoding/json"
	"fmt"
)

// State is the record of the most recent run attempt. Every field is
// independently nullable: nil means "never happened" or "not applicable to the
// last outcome". The whole record is overwritten once per run attempt, after
// the outcome is known.
type State struct {
	LastRunAt           *string       `json:"lastRunAt"`
	LastRunReason       *RunReason    `json:"lastRunReason"`
	LastStatus          *RunStatus    `json:"lastStatus"`
	LastSuccessAt       *string       `json:"lastSuccessAt"`
	LastFailureAt       *string       `json:"lastFailureAt"`
	LastError           *string       `json:"lastError"`
	LastProvider        *ProviderType `json:"lastProvider"`
	LastFileName        *string       `json:"lastFileName"`
	LastLocation        *string       `json:"lastLocation"`
	LastSizeBytes       *int64        `json:"lastSizeBytes"`
	LastAttachmentCount *int64        `json:"lastAttachmentCount"`
	LastAttachmentBytes *int64        `json:"lastAttachmentBytes"`
	LastDurationMs      *int64        `json:"lastDurationMs"`
}

// StateStore persists the last-run record in the shared config slot.
type StateStore struct {
	config ConfigStore
}

func NewStateStore(config ConfigStore) *StateStore {
	return &StateStore{config: config}
}

// Load reads the persisted state. Missing or corrupt data self-heals to the
// zero record ("never run").
func (s *StateStore) Load() (State, error) {
	raw, ok, err := s.config.Get(stateKey)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{}, nil
	}
	return parseState(raw), nil
}

// Save overwrites the persisted state wholesale.
func (s *StateStore) Save(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal backup state: %w", err)
	}
	return s.config.Set(stateKey, string(data))
}

func parseState(raw string) State {
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil && !isFieldTypeError(err) {
		return State{}
	}

	// Discard enum values outside their domain rather than carrying garbage.
	if state.LastRunReason != nil && *state.LastRunReason != ReasonManual && *state.LastRunReason != ReasonScheduled {
		state.LastRunReason = nil
	}
	if state.LastStatus != nil && *state.LastStatus != StatusSuccess && *state.LastStatus != StatusFailure {
		state.LastStatus = nil
	}
	if state.LastProvider != nil && *state.LastProvider != ProviderWebDAV && *state.LastProvider != ProviderS3 {
		state.LastProvider = nil
	}
	return state
}
