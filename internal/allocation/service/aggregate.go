package service

import "concierge/pkg/model"

// DeriveStepStatus folds a step's requests into the step status.
func DeriveStepStatus(requests []*model.StepRequest) string {
	if len(requests) == 0 {
		return model.StepPending
	}

	allClosed := true
	for _, r := range requests {
		switch r.Status {
		case model.RequestAccepted:
			return model.StepAccepted
		case model.RequestRefused, model.RequestExpired:
		default:
			allClosed = false
		}
	}

	if allClosed {
		return model.StepRefusedAll
	}
	return model.StepPending
}

// DeriveJourneyStatus folds a journey's live steps into the journey status.
// Deleted steps are ignored; no steps means nothing is accepted yet.
func DeriveJourneyStatus(steps []*model.Step) string {
	live, accepted := 0, 0
	for _, s := range steps {
		if s.DeletedAt != nil {
			continue
		}
		live++
		if s.Status == model.StepAccepted {
			accepted++
		}
	}

	switch {
	case live > 0 && accepted == live:
		return model.JourneyConfirmed
	case accepted > 0:
		return model.JourneyPartiallyAccepted
	default:
		return model.JourneyRequesting
	}
}
