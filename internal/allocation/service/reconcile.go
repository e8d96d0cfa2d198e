package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	allocerrors "concierge/internal/allocation/errors"
	apperrors "concierge/pkg/errors"
	"concierge/pkg/model"
)

const (
	expireBatchSize    = 200
	reconcileBatchSize = 100
)

func (s *allocationService) Expire(ctx context.Context) (int, error) {
	now := s.now()
	expired := 0
	steps := make(map[string]struct{})

	for {
		batch, err := s.store.FindExpiredPending(ctx, now, expireBatchSize)
		if err != nil {
			return expired, apperrors.Internal("Failed to find expired requests", err)
		}

		moved := 0
		for _, r := range batch {
			err := s.store.TransitionRequest(ctx, r.ID, r.Version, model.RequestTransition{Status: model.RequestExpired})
			if err != nil {
				if errors.Is(err, allocerrors.ErrVersionConflict) {
					continue
				}
				return expired, apperrors.Internal("Failed to expire request", err)
			}
			moved++
			steps[r.StepID] = struct{}{}
		}
		expired += moved

		if len(batch) < expireBatchSize || moved == 0 {
			break
		}
	}

	var changes []model.StatusChange
	for stepID := range steps {
		change, err := s.recomputeStep(ctx, stepID)
		if err != nil {
			s.cfg.Log.Error("Failed to recompute step after expiry", "step_id", stepID, "error", err)
			continue
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	s.publish(changes)

	if expired > 0 {
		s.cfg.Log.Info("Expired pending requests", "count", expired, "steps", len(steps))
	}
	return expired, nil
}

// Reconcile brings a journey back to a consistent state after a partial
// failure: every accepted request owns its step's claim or is demoted, no
// pending request survives next to a claim, and statuses match their
// children. Running it twice changes nothing the second time.
func (s *allocationService) Reconcile(ctx context.Context, journeyID string) error {
	if _, err := s.store.FindJourney(ctx, journeyID); err != nil {
		return s.storeError("Journey", journeyID, err)
	}

	steps, err := s.store.FindStepsByJourney(ctx, journeyID)
	if err != nil {
		return apperrors.Internal("Failed to load steps", err)
	}

	var changes []model.StatusChange
	for _, step := range steps {
		stepChanges, err := s.reconcileStep(ctx, step)
		if err != nil {
			s.cfg.Log.Error("Failed to reconcile step", "step_id", step.ID, "error", err)
			return apperrors.Internal("Failed to reconcile step", err)
		}
		changes = append(changes, stepChanges...)
	}

	change, err := s.recomputeJourney(ctx, journeyID)
	if err != nil {
		return apperrors.Internal("Failed to recompute journey", err)
	}
	if change != nil {
		changes = append(changes, *change)
	}

	s.publish(changes)
	return nil
}

func (s *allocationService) reconcileStep(ctx context.Context, step *model.Step) ([]model.StatusChange, error) {
	requests, err := s.store.FindRequestsByStep(ctx, step.ID)
	if err != nil {
		return nil, err
	}

	var changes []model.StatusChange

	if !step.IsClaimed() {
		winner := earliestAccepted(requests)
		if winner == nil {
			change, err := s.recomputeStep(ctx, step.ID)
			if err != nil {
				return nil, err
			}
			if change != nil {
				changes = append(changes, *change)
			}
			return changes, nil
		}

		acceptedAt := winner.CreatedAt
		if winner.RespondedAt != nil {
			acceptedAt = *winner.RespondedAt
		}
		err := s.store.ClaimStep(ctx, step.ID, model.StepAward{
			RequestID:       winner.ID,
			EstablishmentID: winner.EstablishmentID,
			AcceptedAt:      acceptedAt,
			ConfirmedPrice:  winner.ProposedPrice,
		})
		switch {
		case err == nil:
			s.cfg.Log.Warn("Claimed step for orphaned acceptance", "step_id", step.ID, "request_id", winner.ID)
			if step.Status != model.StepAccepted {
				changes = append(changes, s.stepChange(step, model.StepAccepted))
			}
			winnerID := winner.ID
			s.effects.Dispatcher.Dispatch("provision credential", func(ctx context.Context) error {
				return s.effects.Credentials.Provision(ctx, winnerID)
			})
		case errors.Is(err, allocerrors.ErrStepClaimed):
			// A live accept got there first; settle against its claim.
		default:
			return nil, err
		}

		step, err = s.store.FindStep(ctx, step.ID)
		if err != nil {
			return nil, err
		}
		if !step.IsClaimed() {
			// Deleted while we looked at it.
			return changes, nil
		}
	}

	holder := *step.AcceptedRequestID
	for _, r := range requests {
		if r.Status != model.RequestAccepted || r.ID == holder {
			continue
		}
		err := s.store.TransitionRequest(ctx, r.ID, r.Version, model.RequestTransition{Status: model.RequestSuperseded})
		if err != nil && !errors.Is(err, allocerrors.ErrVersionConflict) {
			return nil, err
		}
		if err == nil {
			s.cfg.Log.Warn("Demoted accepted request that lost its step", "step_id", step.ID, "request_id", r.ID)
		}
	}

	n, err := s.store.SupersedePending(ctx, step.ID, holder)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		s.cfg.Log.Warn("Superseded leftover pending requests", "step_id", step.ID, "count", n)
	}
	return changes, nil
}

// earliestAccepted picks the accepted request that answered first, ties
// broken by id so every reconciler picks the same one.
func earliestAccepted(requests []*model.StepRequest) *model.StepRequest {
	var accepted []*model.StepRequest
	for _, r := range requests {
		if r.Status == model.RequestAccepted {
			accepted = append(accepted, r)
		}
	}
	if len(accepted) == 0 {
		return nil
	}

	sort.Slice(accepted, func(i, j int) bool {
		ti, tj := respondedAt(accepted[i]), respondedAt(accepted[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return accepted[i].ID < accepted[j].ID
	})
	return accepted[0]
}

func respondedAt(r *model.StepRequest) time.Time {
	if r.RespondedAt != nil {
		return *r.RespondedAt
	}
	return r.CreatedAt
}

func (s *allocationService) ReconcileAll(ctx context.Context) (int, error) {
	var (
		reconciled int
		failed     int
		offset     int64
	)

	for {
		ids, err := s.store.ListActiveJourneyIDs(ctx, reconcileBatchSize, offset)
		if err != nil {
			return reconciled, apperrors.Internal("Failed to list journeys", err)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return reconciled, err
			}
			if err := s.Reconcile(ctx, id); err != nil {
				failed++
				s.cfg.Log.Error("Failed to reconcile journey", "journey_id", id, "error", err)
				continue
			}
			reconciled++
		}

		if len(ids) < reconcileBatchSize {
			break
		}
		offset += int64(len(ids))
	}

	s.cfg.Log.Info("Reconciliation pass finished", "reconciled", reconciled, "failed", failed)
	if failed > 0 {
		return reconciled, fmt.Errorf("%d journeys failed to reconcile", failed)
	}
	return reconciled, nil
}
