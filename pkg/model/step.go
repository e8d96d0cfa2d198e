package model

import "time"

const (
	StepPending    = "pending"
	StepAccepted   = "accepted"
	StepRefusedAll = "refused_all"
)

// Step is one fulfillment unit of a Journey. AcceptedRequestID is the claim
// key: once set, only the owning StepRequest may rewrite the award fields.
type Step struct {
	ID                      string     `json:"id" bson:"_id" db:"id" validate:"required,uuid"`
	JourneyID               string     `json:"journey_id" bson:"journey_id" db:"journey_id" validate:"required,uuid"`
	Order                   int        `json:"order" bson:"order" db:"ordinal" validate:"min=0"`
	Universe                string     `json:"universe" bson:"universe" db:"universe" validate:"required,max=50"`
	Description             string     `json:"description" bson:"description" db:"description" validate:"max=2000"`
	BudgetMin               *float64   `json:"budget_min,omitempty" bson:"budget_min,omitempty" db:"budget_min" validate:"omitempty,gte=0"`
	BudgetMax               *float64   `json:"budget_max,omitempty" bson:"budget_max,omitempty" db:"budget_max" validate:"omitempty,gte=0"`
	Status                  string     `json:"status" bson:"status" db:"status" validate:"required,oneof=pending accepted refused_all"`
	AcceptedRequestID       *string    `json:"accepted_request_id,omitempty" bson:"accepted_request_id" db:"accepted_request_id"`
	AcceptedEstablishmentID *string    `json:"accepted_establishment_id,omitempty" bson:"accepted_establishment_id,omitempty" db:"accepted_establishment_id"`
	AcceptedAt              *time.Time `json:"accepted_at,omitempty" bson:"accepted_at,omitempty" db:"accepted_at"`
	ConfirmedPrice          *float64   `json:"confirmed_price,omitempty" bson:"confirmed_price,omitempty" db:"confirmed_price"`
	DeletedAt               *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt               time.Time  `json:"created_at" bson:"created_at" db:"created_at"`
}

func (s *Step) IsClaimed() bool {
	return s.AcceptedRequestID != nil && *s.AcceptedRequestID != ""
}

// StepAward carries the fields written when a StepRequest claims its Step.
type StepAward struct {
	RequestID       string
	EstablishmentID string
	AcceptedAt      time.Time
	ConfirmedPrice  *float64
}
