package model

import "time"

const (
	JourneyRequesting        = "requesting"
	JourneyPartiallyAccepted = "partially_accepted"
	JourneyConfirmed         = "confirmed"
	JourneyCancelled         = "cancelled"
)

type Journey struct {
	ID           string     `json:"id" bson:"_id" db:"id" validate:"required,uuid"`
	Title        string     `json:"title" bson:"title" db:"title" validate:"required,min=2,max=200"`
	DesiredStart time.Time  `json:"desired_start" bson:"desired_start" db:"desired_start" validate:"required"`
	DesiredEnd   time.Time  `json:"desired_end" bson:"desired_end" db:"desired_end" validate:"required,gtefield=DesiredStart"`
	PartySize    int        `json:"party_size" bson:"party_size" db:"party_size" validate:"required,min=1,max=500"`
	City         string     `json:"city" bson:"city" db:"city" validate:"required,min=2,max=100"`
	ConciergeID  string     `json:"concierge_id" bson:"concierge_id" db:"concierge_id" validate:"required"`
	Status       string     `json:"status" bson:"status" db:"status" validate:"required,oneof=requesting partially_accepted confirmed cancelled"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// JourneyStatusRank orders the statuses aggregation may move through.
// Cancelled has no rank: aggregation never writes over it.
func JourneyStatusRank(status string) int {
	switch status {
	case JourneyRequesting:
		return 1
	case JourneyPartiallyAccepted:
		return 2
	case JourneyConfirmed:
		return 3
	default:
		return 0
	}
}

// JourneyStatusesAtOrBelow lists the statuses a journey may hold for an
// aggregated write of status to be applied.
func JourneyStatusesAtOrBelow(status string) []string {
	rank := JourneyStatusRank(status)
	out := make([]string, 0, 3)
	for _, s := range []string{JourneyRequesting, JourneyPartiallyAccepted, JourneyConfirmed} {
		if r := JourneyStatusRank(s); r > 0 && r <= rank {
			out = append(out, s)
		}
	}
	return out
}
