package model

import "time"

const (
	RequestPending    = "pending"
	RequestAccepted   = "accepted"
	RequestRefused    = "refused"
	RequestSuperseded = "superseded"
	RequestExpired    = "expired"
)

// StepRequest is one establishment's candidate offer against a Step.
// Version is the compare-and-swap key and grows on every transition.
type StepRequest struct {
	ID              string     `json:"id" bson:"_id" db:"id" validate:"required,uuid"`
	StepID          string     `json:"step_id" bson:"step_id" db:"step_id" validate:"required,uuid"`
	EstablishmentID string     `json:"establishment_id" bson:"establishment_id" db:"establishment_id" validate:"required"`
	Status          string     `json:"status" bson:"status" db:"status" validate:"required,oneof=pending accepted refused superseded expired"`
	Version         int64      `json:"version" bson:"version" db:"version" validate:"min=0"`
	ProposedPrice   *float64   `json:"proposed_price,omitempty" bson:"proposed_price,omitempty" db:"proposed_price"`
	ResponseNote    *string    `json:"response_note,omitempty" bson:"response_note,omitempty" db:"response_note"`
	RespondedBy     *string    `json:"responded_by,omitempty" bson:"responded_by,omitempty" db:"responded_by"`
	RespondedAt     *time.Time `json:"responded_at,omitempty" bson:"responded_at,omitempty" db:"responded_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty" db:"expires_at"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at" db:"created_at"`
}

func (r *StepRequest) IsPending() bool {
	return r.Status == RequestPending
}

// RequestTransition is the write half of a conditional update on a
// StepRequest. The predicate is always the version read by the caller.
type RequestTransition struct {
	Status        string
	ProposedPrice *float64
	ResponseNote  *string
	RespondedBy   *string
	RespondedAt   time.Time
}

// RequestFilter narrows request listings. Empty fields are ignored;
// EstablishmentIDs is always applied and an empty set matches nothing.
type RequestFilter struct {
	Status           string
	EstablishmentIDs []string
	Limit            int
	Offset           int64
}

// RequestDetail is a StepRequest with its Step and Journey context.
type RequestDetail struct {
	Request *StepRequest `json:"request"`
	Step    *Step        `json:"step"`
	Journey *Journey     `json:"journey"`
}
