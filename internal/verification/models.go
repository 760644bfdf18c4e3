package verification

import (
	"fmt"
	"time"
)

// State is a position in the per-request verification state machine:
// PENDING -> SCORED -> one of the four terminal tiers.
type State string

const (
	StatePending State = "PENDING"
	StateScored  State = "SCORED"
	StateAllowed State = "ALLOWED"
	StateLogged  State = "LOGGED"
	StateAlerted State = "ALERTED"
	StatePurged  State = "PURGED"
)

// Terminal reports whether s is one of the four outcomes.
func (s State) Terminal() bool {
	switch s {
	case StateAllowed, StateLogged, StateAlerted, StatePurged:
		return true
	}
	return false
}

// Skip reasons recorded on a skipped verification.
const (
	SkipGraderUnreachable = "grader_unreachable"
	SkipGraderTimeout     = "grader_timeout"
	SkipGraderMalformed   = "grader_malformed_output"
	SkipCircuitOpen       = "grader_circuit_open"
	SkipQueueFull         = "queue_full"
	SkipNoTokens          = "no_tokens"
)

// Thresholds map a risk score onto an action tier. Actions are monotonic in
// score: purge >= Purge, alert >= Alert, log >= Log, else allow.
type Thresholds struct {
	Log   float64
	Alert float64
	Purge float64
}

// DefaultThresholds matches the VERIFY_*_THRESHOLD defaults.
var DefaultThresholds = Thresholds{Log: 0.3, Alert: 0.6, Purge: 0.9}

func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"log": t.Log, "alert": t.Alert, "purge": t.Purge} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s threshold must be within [0,1], got %v", name, v)
		}
	}
	if t.Log > t.Alert || t.Alert > t.Purge {
		return fmt.Errorf("thresholds must satisfy log <= alert <= purge, got %v/%v/%v", t.Log, t.Alert, t.Purge)
	}
	return nil
}

// Tier returns the terminal state for score.
func (t Thresholds) Tier(score float64) State {
	switch {
	case score >= t.Purge:
		return StatePurged
	case score >= t.Alert:
		return StateAlerted
	case score >= t.Log:
		return StateLogged
	default:
		return StateAllowed
	}
}

// Task is one request's verification job. TokenIDs is exactly the set the
// redaction created; a purge never touches anything else.
type Task struct {
	RequestID     string
	RedactedText  string
	TokenIDs      []string
	PolicyContext string
	SubmittedAt   time.Time
}

// Result is the recorded outcome of a verification.
type Result struct {
	RequestID      string    `json:"request_id"`
	State          State     `json:"state"`
	Tier           State     `json:"tier"`
	Score          *float64  `json:"score,omitempty"`
	Rationale      string    `json:"rationale,omitempty"`
	Skipped        bool      `json:"skipped"`
	SkipReason     string    `json:"skip_reason,omitempty"`
	TokenCount     int       `json:"token_count"`
	PurgedTokenIDs []string  `json:"purged_token_ids,omitempty"`
	PurgeError     string    `json:"purge_error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Alert is published for ALERTED and PURGED outcomes. It carries no
// original values.
type Alert struct {
	RequestID     string    `json:"request_id"`
	Tier          State     `json:"tier"`
	Score         float64   `json:"score"`
	Rationale     string    `json:"rationale"`
	PolicyContext string    `json:"policy_context"`
	TokenCount    int       `json:"token_count"`
	Purged        int       `json:"purged"`
	PurgeError    string    `json:"purge_error,omitempty"`
	At            time.Time `json:"at"`
}
