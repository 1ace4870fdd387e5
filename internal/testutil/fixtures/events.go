package fixtures

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/behavioral-threat-engine/internal/domain/event"
)

// EventBuilder builds test SecurityEvent entities
type EventBuilder struct {
	t            *testing.T
	userID       string
	eventType    event.EventType
	timestamp    time.Time
	sourceIP     string
	userAgent    string
	method       string
	endpoint     string
	responseCode int
	sessionID    string
}

// NewEventBuilder creates a new EventBuilder with defaults
func NewEventBuilder(t *testing.T) *EventBuilder {
	t.Helper()
	return &EventBuilder{
		t:            t,
		userID:       "user-1",
		eventType:    event.TypeResourceAccess,
		timestamp:    time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		sourceIP:     "203.0.113.10",
		userAgent:    "Mozilla/5.0 (Windows NT 10.0) Chrome/125.0",
		method:       "GET",
		endpoint:     "/api/reports",
		responseCode: 200,
		sessionID:    "session-1",
	}
}

// WithUserID sets the identity
func (b *EventBuilder) WithUserID(userID string) *EventBuilder {
	b.userID = userID
	return b
}

// WithType sets the event type
func (b *EventBuilder) WithType(t event.EventType) *EventBuilder {
	b.eventType = t
	return b
}

// WithTimestamp sets the event time
func (b *EventBuilder) WithTimestamp(ts time.Time) *EventBuilder {
	b.timestamp = ts
	return b
}

// WithSourceIP sets the source address
func (b *EventBuilder) WithSourceIP(ip string) *EventBuilder {
	b.sourceIP = ip
	return b
}

// WithEndpoint sets the method and endpoint
func (b *EventBuilder) WithEndpoint(method, endpoint string) *EventBuilder {
	b.method = method
	b.endpoint = endpoint
	return b
}

// WithResponseCode sets the response code
func (b *EventBuilder) WithResponseCode(code int) *EventBuilder {
	b.responseCode = code
	return b
}

// WithSessionID sets the session
func (b *EventBuilder) WithSessionID(sessionID string) *EventBuilder {
	b.sessionID = sessionID
	return b
}

// Build creates the SecurityEvent
func (b *EventBuilder) Build() event.SecurityEvent {
	return event.SecurityEvent{
		EventID:      uuid.New(),
		UserID:       b.userID,
		Timestamp:    b.timestamp,
		EventType:    b.eventType,
		SourceIP:     b.sourceIP,
		UserAgent:    b.userAgent,
		Method:       b.method,
		Endpoint:     b.endpoint,
		ResponseCode: b.responseCode,
		ResponseTime: 120,
		SessionID:    b.sessionID,
	}
}

// SessionBatch builds an ordered batch of n sessions, each replaying the
// given action endpoints a minute apart. Useful for mining round-trips.
func SessionBatch(t *testing.T, userID string, sessions int, endpoints []string) []event.SecurityEvent {
	t.Helper()
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	var batch []event.SecurityEvent
	for s := 0; s < sessions; s++ {
		sessionID := fmt.Sprintf("session-%d", s)
		for i, ep := range endpoints {
			ev := NewEventBuilder(t).
				WithUserID(userID).
				WithSessionID(sessionID).
				WithEndpoint("GET", ep).
				WithTimestamp(base.Add(time.Duration(s)*time.Hour + time.Duration(i)*time.Minute)).
				Build()
			batch = append(batch, ev)
		}
	}
	return batch
}
