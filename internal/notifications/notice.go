// Package notifications delivers acceptance notices to the concierge who owns
// a journey.
package notifications

import (
	"fmt"
	"strconv"

	"concierge/pkg/model"
	"concierge/pkg/sanitizer"
)

// AcceptanceNotice builds the message sent when an establishment accepts a
// step request. est may be nil when the establishment record is missing.
func AcceptanceNotice(journey *model.Journey, step *model.Step, req *model.StepRequest, est *model.Establishment) model.Notification {
	vendor := req.EstablishmentID
	data := map[string]string{
		"journey_id":       journey.ID,
		"step_id":          step.ID,
		"request_id":       req.ID,
		"establishment_id": req.EstablishmentID,
	}

	if est != nil {
		if est.Name != "" {
			vendor = est.Name
		}
		if phone := sanitizer.NormalizePhone(est.ContactPhone); phone != "" {
			data["vendor_phone"] = phone
		}
		if est.ContactEmail != "" {
			data["vendor_email"] = est.ContactEmail
		}
	}
	data["vendor_name"] = vendor

	body := fmt.Sprintf("%s accepted \"%s\" for %s", vendor, describe(step), journey.Title)
	if req.ProposedPrice != nil {
		price := strconv.FormatFloat(*req.ProposedPrice, 'f', 2, 64)
		data["proposed_price"] = price
		body += " at " + price
	}
	if req.ResponseNote != nil && *req.ResponseNote != "" {
		data["response_note"] = *req.ResponseNote
		body += ". Note: " + *req.ResponseNote
	}

	return model.Notification{
		Recipient: journey.ConciergeID,
		Title:     "Request accepted",
		Body:      body,
		Data:      data,
	}
}

func describe(step *model.Step) string {
	if step.Description != "" {
		return step.Description
	}
	return step.Universe
}
