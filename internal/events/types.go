// Package events provides the in-process event bus used to publish risk decisions
// (stop triggers, limit violations, predicted breaches) to monitoring collaborators.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	StopOpened      EventType = "STOP_OPENED"
	StopTriggered   EventType = "STOP_TRIGGERED"
	StopClosed      EventType = "STOP_CLOSED"
	LimitUpdated    EventType = "LIMIT_UPDATED"
	LimitRemoved    EventType = "LIMIT_REMOVED"
	LimitViolated   EventType = "LIMIT_VIOLATED"
	VaRBreach       EventType = "VAR_BREACH_PREDICTED"
	MarginCallRisk  EventType = "MARGIN_CALL_RISK"
	VolatilitySpike EventType = "VOLATILITY_SPIKE"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type the engine emits.
var AllTypes = []EventType{
	StopOpened,
	StopTriggered,
	StopClosed,
	LimitUpdated,
	LimitRemoved,
	LimitViolated,
	VaRBreach,
	MarginCallRisk,
	VolatilitySpike,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
