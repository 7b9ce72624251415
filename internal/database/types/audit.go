package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/types/enum"
)

// AuditEvent is an append-only record of a legally relevant action.
// UserID is empty for system events such as version updates.
type AuditEvent struct {
	Sequence        int64               `bun:",pk,autoincrement"  json:"sequence"`
	ID              uuid.UUID           `bun:",notnull,type:uuid" json:"id"`
	UserID          string              `bun:",nullzero"          json:"userId,omitempty"`
	EventType       enum.AuditEventType `bun:",notnull"           json:"eventType"`
	EventData       map[string]any      `bun:"type:jsonb"         json:"eventData,omitempty"`
	Timestamp       time.Time           `bun:"event_timestamp,notnull" json:"timestamp"`
	IPAddress       string              `bun:",nullzero"          json:"ipAddress,omitempty"`
	UserAgent       string              `bun:",nullzero"          json:"userAgent,omitempty"`
	SessionID       string              `bun:",nullzero"          json:"sessionId,omitempty"`
	DocumentVersion string              `bun:",nullzero"          json:"documentVersion,omitempty"`
	PreviousVersion string              `bun:",nullzero"          json:"previousVersion,omitempty"`
	ActionTaken     string              `bun:",nullzero"          json:"actionTaken,omitempty"`
}

// RequestContext carries the client details attached to audit events.
type RequestContext struct {
	IPAddress string
	UserAgent string
	SessionID string
}

// NewAuditEvent creates an event stamped with a fresh id and the given time.
func NewAuditEvent(eventType enum.AuditEventType, userID string, at time.Time, rc RequestContext) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New(),
		UserID:    userID,
		EventType: eventType,
		EventData: make(map[string]any),
		Timestamp: at,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		SessionID: rc.SessionID,
	}
}

// AuditFilter is used to provide filter criteria for retrieving audit events.
type AuditFilter struct {
	UserID    string
	EventType enum.AuditEventType
	StartDate time.Time
	EndDate   time.Time
}

// AuditCursor represents a keyset pagination cursor for audit events.
type AuditCursor struct {
	Timestamp time.Time `json:"timestamp"`
	Sequence  int64     `json:"sequence"`
}
