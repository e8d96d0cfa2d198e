package model

import "time"

// AcceptInput is the body of an accept call.
type AcceptInput struct {
	ProposedPrice *float64 `json:"proposed_price,omitempty" validate:"omitempty,gte=0,lte=10000000"`
	ResponseNote  *string  `json:"response_note,omitempty" validate:"omitempty,max=1000"`
}

// RefuseInput is the body of a refuse call.
type RefuseInput struct {
	ResponseNote *string `json:"response_note,omitempty" validate:"omitempty,max=1000"`
}

// RequestQuery holds the list endpoint's query parameters.
type RequestQuery struct {
	Status          string `validate:"omitempty,request_status"`
	EstablishmentID string `validate:"omitempty,max=100"`
	Limit           int
	Offset          int64
}

// BroadcastInput fans a Step out to establishments as pending requests.
type BroadcastInput struct {
	StepID           string        `json:"step_id" validate:"required,uuid"`
	EstablishmentIDs []string      `json:"establishment_ids" validate:"required,min=1,max=200,dive,required,max=100"`
	TTL              time.Duration `json:"ttl" validate:"gte=0"`
}

// RequestPage is one page of a request listing.
type RequestPage struct {
	Requests   []*StepRequest `json:"requests"`
	TotalCount int64          `json:"total_count"`
	Limit      int            `json:"limit"`
	Offset     int64          `json:"offset"`
}

// Notification is a message for a human recipient, delivered out of band.
type Notification struct {
	Recipient string            `json:"recipient"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}
