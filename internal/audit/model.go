package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action enumerates every event the log records. The Details payload of an
// Entry is a tagged union keyed by this action: each action has exactly one
// detail struct below.
type Action string

const (
	ActionActivate       Action = "activate"
	ActionReactivate     Action = "reactivate"
	ActionAdminRevoke    Action = "admin_revoke"
	ActionAdminReset     Action = "admin_reset"
	ActionAdminUnbind    Action = "admin_unbind"
	ActionAdminUpgrade   Action = "admin_upgrade"
	ActionAdminDowngrade Action = "admin_downgrade"
	ActionAdminDelete    Action = "admin_delete"
)

// Entry is a single append-only audit record.
type Entry struct {
	ID         int64           `json:"id"`
	EventID    uuid.UUID       `json:"event_id"` // idempotency key for spool replay
	Action     Action          `json:"action"`
	LicenseKey string          `json:"license_key"`
	MachineID  string          `json:"machine_id,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Detail payloads, one per action.

type ActivateDetails struct {
	MachineName string     `json:"machine_name,omitempty"`
	AppVersion  string     `json:"app_version,omitempty"`
	Tier        string     `json:"tier"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Imported    bool       `json:"imported,omitempty"` // first-seen signed key
}

type ReactivateDetails struct {
	PriorStatus string `json:"prior_status"`
}

type RevokeDetails struct {
	PriorStatus string `json:"prior_status"`
	Reason      string `json:"reason,omitempty"`
}

type ResetDetails struct {
	Cleared int64 `json:"cleared"`
}

type UnbindDetails struct {
	MachineID string `json:"machine_id"`
}

type TierChangeDetails struct {
	FromTier     string     `json:"from_tier"`
	ToTier       string     `json:"to_tier"`
	FromDuration int        `json:"from_duration_days"`
	ToDuration   int        `json:"to_duration_days"`
	FromMax      int        `json:"from_max_activations"`
	ToMax        int        `json:"to_max_activations"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type DeleteDetails struct {
	Tier   string `json:"tier"`
	Status string `json:"status"`
}

// MarshalDetails serializes a detail struct for Entry.Details. Marshal
// failures degrade to an empty payload rather than losing the entry.
func MarshalDetails(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

// spooledEntry wraps an Entry for JSONL spooling when the DB is down.
type spooledEntry struct {
	EventID   string    `json:"event_id"`
	Payload   Entry     `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Filter narrows audit queries.
type Filter struct {
	LicenseKey string
	Action     Action
	Limit      int
}
