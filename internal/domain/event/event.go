package event

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/errors"
)

// EventType classifies a security event by the action it records
type EventType string

const (
	TypeLogin          EventType = "login"
	TypeLogout         EventType = "logout"
	TypeResourceAccess EventType = "resource_access"
	TypeDataExport     EventType = "data_export"
	TypePermissionUse  EventType = "permission_use"
	TypeConfigChange   EventType = "config_change"
	TypeAPICall        EventType = "api_call"
)

// SecurityEvent is an immutable activity record produced by the upstream
// ingestion layer. The engine consumes batches of these read-only.
type SecurityEvent struct {
	EventID      uuid.UUID              `json:"event_id" validate:"required"`
	UserID       string                 `json:"user_id" validate:"required"`
	Timestamp    time.Time              `json:"timestamp" validate:"required"`
	EventType    EventType              `json:"event_type" validate:"required"`
	SourceIP     string                 `json:"source_ip,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	Method       string                 `json:"method,omitempty"`
	Endpoint     string                 `json:"endpoint,omitempty"`
	ResponseCode int                    `json:"response_code,omitempty"`
	ResponseTime float64                `json:"response_time_ms,omitempty" validate:"gte=0"`
	PayloadSize  int64                  `json:"payload_size,omitempty" validate:"gte=0"`
	SessionID    string                 `json:"session_id,omitempty"`
	RiskScore    *float64               `json:"risk_score,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

var validate = validator.New()

// Validate checks the event against its field constraints
func (e *SecurityEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return errors.NewInvalidInputError("INVALID_EVENT", "security event failed validation").WithCause(err)
	}
	return nil
}

// Action returns the token used by sequence mining: the event type, or the
// endpoint when the type alone is too coarse to distinguish behavior.
func (e *SecurityEvent) Action() string {
	if e.EventType == TypeResourceAccess || e.EventType == TypeAPICall {
		if e.Endpoint != "" {
			return string(e.EventType) + ":" + e.Endpoint
		}
	}
	return string(e.EventType)
}

// ValidateBatch rejects empty batches and batches containing malformed events.
// Events are expected in timestamp order but the engine does not require it.
func ValidateBatch(events []SecurityEvent) error {
	if len(events) == 0 {
		return errors.NewInvalidInputError("EMPTY_BATCH", "event batch cannot be empty")
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
