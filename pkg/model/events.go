package model

import "time"

const (
	EventStepStatusChanged    = "step.status_changed"
	EventJourneyStatusChanged = "journey.status_changed"
	EventRequestAccepted      = "request.accepted"
)

// StatusChange is the fact emitted when an aggregate's derived status moves.
type StatusChange struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entity_id"`
	JourneyID  string    `json:"journey_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}
