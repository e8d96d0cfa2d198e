package model

import "time"

type Establishment struct {
	ID           string    `json:"id" bson:"_id" db:"id"`
	Name         string    `json:"name" bson:"name" db:"name"`
	ContactEmail string    `json:"contact_email,omitempty" bson:"contact_email,omitempty" db:"contact_email"`
	ContactPhone string    `json:"contact_phone,omitempty" bson:"contact_phone,omitempty" db:"contact_phone"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}

// ScanCredential is the scannable secret minted once a StepRequest is accepted.
type ScanCredential struct {
	RequestID string    `json:"request_id" bson:"_id" db:"request_id"`
	Secret    string    `json:"-" bson:"secret" db:"secret"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" db:"created_at"`
}
