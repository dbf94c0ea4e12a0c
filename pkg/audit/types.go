package audit

import (
	"encoding/json"
	"time"
)

// Action categorizes what the request was doing.
type Action string

const (
	// Authentication actions
	ActionAuthLogin        Action = "auth.login"
	ActionAuthLoginFailed  Action = "auth.login_failed"
	ActionAuthLogout       Action = "auth.logout"
	ActionAuthRefresh      Action = "auth.refresh"
	ActionAuthTokenInvalid Action = "auth.token_invalid"

	// Authorization actions
	ActionAuthzDenied Action = "authz.access_denied"

	// Security actions
	ActionSecurityRateLimited     Action = "security.rate_limited"
	ActionSecurityIPBlocked       Action = "security.ip_blocked"
	ActionSecurityInputRejected   Action = "security.input_rejected"
	ActionSecurityInputSanitized  Action = "security.input_sanitized"
	ActionSecurityBruteForceBlock Action = "security.brute_force_block"

	// Resource access actions
	ActionResourceRead   Action = "resource.read"
	ActionResourceCreate Action = "resource.create"
	ActionResourceUpdate Action = "resource.update"
	ActionResourceDelete Action = "resource.delete"

	// Admin actions
	ActionAdminBlockIP   Action = "admin.block_ip"
	ActionAdminUnblockIP Action = "admin.unblock_ip"
)

// Outcome is how the request ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Resource names the kind of thing a request touched.
type Resource string

const (
	ResourcePatient      Resource = "patient"
	ResourceAppointment  Resource = "appointment"
	ResourcePrescription Resource = "prescription"
	ResourceRecord       Resource = "medical_record"
	ResourceToken        Resource = "token"
	ResourceIP           Resource = "ip"
	ResourceUnknown      Resource = ""
)

// Record is a single audit log entry. PrincipalID is empty for anonymous
// requests.
type Record struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Outcome   Outcome   `json:"outcome"`

	PrincipalID   string `json:"principal_id,omitempty"`
	PrincipalRole string `json:"principal_role,omitempty"`

	Resource   Resource `json:"resource,omitempty"`
	ResourceID string   `json:"resource_id,omitempty"`

	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON serializes the record.
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a record.
func FromJSON(data []byte) (*Record, error) {
	var rec Record
	err := json.Unmarshal(data, &rec)
	return &rec, err
}

// RetentionPolicy defines how long audit records are kept.
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep records.
	RetentionDays int
}

// DefaultRetentionPolicy keeps records for 90 days.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}
