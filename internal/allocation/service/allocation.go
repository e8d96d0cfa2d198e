package service

import (
	"context"
	"errors"
	"time"

	allocerrors "concierge/internal/allocation/errors"
	"concierge/internal/allocation/repository"
	"concierge/internal/allocation/validator"
	"concierge/internal/notifications"
	"concierge/internal/sideeffects"
	"concierge/pkg/auth"
	"concierge/pkg/config"
	apperrors "concierge/pkg/errors"
	"concierge/pkg/model"
	"concierge/pkg/sanitizer"

	"github.com/google/uuid"
)

const (
	supersededMessage = "another vendor already accepted this request"
	resolvedMessage   = "request was resolved concurrently"
)

type AllocationService interface {
	Accept(ctx context.Context, requestID string, in *model.AcceptInput) error
	Refuse(ctx context.Context, requestID string, in *model.RefuseInput) error
	List(ctx context.Context, q *model.RequestQuery) (*model.RequestPage, error)
	Get(ctx context.Context, requestID string) (*model.RequestDetail, error)
	Broadcast(ctx context.Context, in *model.BroadcastInput) ([]*model.StepRequest, error)

	// Expire moves pending requests past their deadline to expired and
	// returns how many moved.
	Expire(ctx context.Context) (int, error)
	Reconcile(ctx context.Context, journeyID string) error
	ReconcileAll(ctx context.Context) (int, error)
}

type Dispatcher interface {
	Dispatch(name string, task sideeffects.Task) bool
}

type CredentialProvisioner interface {
	Provision(ctx context.Context, requestID string) error
}

type Notifier interface {
	Notify(ctx context.Context, msg model.Notification) error
}

type EventPublisher interface {
	Publish(ctx context.Context, change model.StatusChange) error
}

// SideEffects are run after an acceptance commits. None of them can change
// the outcome of the call that triggered them.
type SideEffects struct {
	Dispatcher  Dispatcher
	Credentials CredentialProvisioner
	Notifier    Notifier
	Events      EventPublisher
}

type allocationService struct {
	store     repository.Store
	validator *validator.AllocationValidator
	cfg       *config.Config
	effects   SideEffects
	now       func() time.Time
}

func NewAllocationService(
	store repository.Store,
	validator *validator.AllocationValidator,
	cfg *config.Config,
	effects SideEffects,
) AllocationService {
	return &allocationService{
		store:     store,
		validator: validator,
		cfg:       cfg,
		effects:   effects,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
	}
}

func (s *allocationService) Accept(ctx context.Context, requestID string, in *model.AcceptInput) error {
	id, err := identity(ctx)
	if err != nil {
		return err
	}
	if in == nil {
		in = &model.AcceptInput{}
	}
	if err := s.validate(s.validator.ValidateAccept(in)); err != nil {
		return err
	}

	req, err := s.loadVisible(ctx, id, requestID)
	if err != nil {
		return err
	}
	if !req.IsPending() {
		return apperrors.AlreadyProcessed("Request", req.Status)
	}

	at := s.now()
	note := sanitizer.NormalizeNotePtr(in.ResponseNote)
	subject := id.Subject
	err = s.store.TransitionRequest(ctx, req.ID, req.Version, model.RequestTransition{
		Status:        model.RequestAccepted,
		ProposedPrice: in.ProposedPrice,
		ResponseNote:  note,
		RespondedBy:   &subject,
		RespondedAt:   at,
	})
	if err != nil {
		if errors.Is(err, allocerrors.ErrVersionConflict) {
			s.cfg.Log.Info("Accept lost version race", "request_id", req.ID, "version", req.Version)
			return apperrors.Superseded(supersededMessage)
		}
		s.cfg.Log.Error("Failed to accept request", "request_id", req.ID, "error", err)
		return apperrors.Internal("Failed to accept request", err)
	}

	req.Status = model.RequestAccepted
	req.Version++
	req.ProposedPrice = in.ProposedPrice
	req.ResponseNote = note
	req.RespondedBy = &subject
	req.RespondedAt = &at

	var (
		step    *model.Step
		changes []model.StatusChange
	)
	err = s.store.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		// Retried attempts start over.
		changes = changes[:0]

		var err error
		step, err = s.store.FindStep(txCtx, req.StepID)
		if err != nil {
			return err
		}

		award := model.StepAward{
			RequestID:       req.ID,
			EstablishmentID: req.EstablishmentID,
			AcceptedAt:      at,
			ConfirmedPrice:  in.ProposedPrice,
		}
		if err := s.store.ClaimStep(txCtx, step.ID, award); err != nil {
			return err
		}

		superseded, err := s.store.SupersedePending(txCtx, step.ID, req.ID)
		if err != nil {
			return err
		}
		if superseded > 0 {
			s.cfg.Log.Debug("Superseded sibling requests", "step_id", step.ID, "count", superseded)
		}

		if step.Status != model.StepAccepted {
			changes = append(changes, s.stepChange(step, model.StepAccepted))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, allocerrors.ErrStepClaimed) {
			s.demote(ctx, req)
			return apperrors.Superseded(supersededMessage)
		}
		// The request stays accepted without a claim; Reconcile settles it.
		s.cfg.Log.Error("Failed to claim step", "request_id", req.ID, "step_id", req.StepID, "error", err)
		return apperrors.Internal("Failed to complete acceptance", err)
	}

	s.cfg.Log.Info("Request accepted",
		"request_id", req.ID,
		"step_id", step.ID,
		"establishment_id", req.EstablishmentID,
		"responded_by", subject,
	)
	changes = append([]model.StatusChange{{
		Type:       model.EventRequestAccepted,
		EntityID:   req.ID,
		JourneyID:  step.JourneyID,
		From:       model.RequestPending,
		To:         model.RequestAccepted,
		OccurredAt: at,
	}}, changes...)

	// The claim is committed, so side effects go out even if the journey
	// write below fails.
	s.dispatchAcceptance(req, step)

	// Read after commit so the last of two concurrent claims always sees
	// the other one.
	change, err := s.recomputeJourney(ctx, step.JourneyID)
	if err != nil {
		s.cfg.Log.Error("Failed to recompute journey", "journey_id", step.JourneyID, "error", err)
		s.publish(changes)
		return apperrors.Internal("Failed to update journey", err)
	}
	if change != nil {
		changes = append(changes, *change)
	}

	s.publish(changes)
	return nil
}

// demote moves a request that won its own CAS but lost the step claim to
// superseded. A conflict here means something else already moved it.
func (s *allocationService) demote(ctx context.Context, req *model.StepRequest) {
	err := s.store.TransitionRequest(ctx, req.ID, req.Version, model.RequestTransition{Status: model.RequestSuperseded})
	switch {
	case err == nil:
		s.cfg.Log.Info("Accepted request lost the step claim", "request_id", req.ID, "step_id", req.StepID)
	case errors.Is(err, allocerrors.ErrVersionConflict):
		s.cfg.Log.Info("Losing request already moved", "request_id", req.ID)
	default:
		s.cfg.Log.Error("Failed to demote losing request", "request_id", req.ID, "error", err)
	}
}

func (s *allocationService) Refuse(ctx context.Context, requestID string, in *model.RefuseInput) error {
	id, err := identity(ctx)
	if err != nil {
		return err
	}
	if in == nil {
		in = &model.RefuseInput{}
	}
	if err := s.validate(s.validator.ValidateRefuse(in)); err != nil {
		return err
	}

	req, err := s.loadVisible(ctx, id, requestID)
	if err != nil {
		return err
	}
	if !req.IsPending() {
		return apperrors.AlreadyProcessed("Request", req.Status)
	}

	subject := id.Subject
	err = s.store.TransitionRequest(ctx, req.ID, req.Version, model.RequestTransition{
		Status:       model.RequestRefused,
		ResponseNote: sanitizer.NormalizeNotePtr(in.ResponseNote),
		RespondedBy:  &subject,
		RespondedAt:  s.now(),
	})
	if err != nil {
		if errors.Is(err, allocerrors.ErrVersionConflict) {
			s.cfg.Log.Info("Refuse lost version race", "request_id", req.ID, "version", req.Version)
			return apperrors.Superseded(resolvedMessage)
		}
		s.cfg.Log.Error("Failed to refuse request", "request_id", req.ID, "error", err)
		return apperrors.Internal("Failed to refuse request", err)
	}

	s.cfg.Log.Info("Request refused", "request_id", req.ID, "step_id", req.StepID, "responded_by", subject)

	change, err := s.recomputeStep(ctx, req.StepID)
	if err != nil {
		s.cfg.Log.Error("Failed to recompute step", "step_id", req.StepID, "error", err)
		return apperrors.Internal("Failed to update step", err)
	}
	if change != nil {
		s.publish([]model.StatusChange{*change})
	}
	return nil
}

func (s *allocationService) List(ctx context.Context, q *model.RequestQuery) (*model.RequestPage, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = &model.RequestQuery{}
	}
	if err := s.validate(s.validator.ValidateQuery(q)); err != nil {
		return nil, err
	}

	establishments := id.EstablishmentIDs
	if q.EstablishmentID != "" {
		if !id.CanActFor(q.EstablishmentID) {
			return nil, apperrors.Forbidden("Not allowed to act for this establishment")
		}
		establishments = []string{q.EstablishmentID}
	}

	limit := config.NormalizePaginationLimit(q.Limit)
	offset := config.NormalizeOffset(q.Offset)

	requests, total, err := s.store.ListRequests(ctx, model.RequestFilter{
		Status:           q.Status,
		EstablishmentIDs: establishments,
		Limit:            limit,
		Offset:           offset,
	})
	if err != nil {
		s.cfg.Log.Error("Failed to list requests", "subject", id.Subject, "error", err)
		return nil, apperrors.Internal("Failed to list requests", err)
	}

	return &model.RequestPage{
		Requests:   requests,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func (s *allocationService) Get(ctx context.Context, requestID string) (*model.RequestDetail, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	req, err := s.loadVisible(ctx, id, requestID)
	if err != nil {
		return nil, err
	}

	step, err := s.store.FindStep(ctx, req.StepID)
	if err != nil {
		return nil, s.storeError("Step", req.StepID, err)
	}
	journey, err := s.store.FindJourney(ctx, step.JourneyID)
	if err != nil {
		return nil, s.storeError("Journey", step.JourneyID, err)
	}

	return &model.RequestDetail{Request: req, Step: step, Journey: journey}, nil
}

func (s *allocationService) Broadcast(ctx context.Context, in *model.BroadcastInput) ([]*model.StepRequest, error) {
	if in == nil {
		return nil, apperrors.InvalidInput("Broadcast input is required")
	}
	in.StepID = sanitizer.NormalizeIdentifier(in.StepID)
	in.EstablishmentIDs = sanitizer.NormalizeIdentifiers(in.EstablishmentIDs)
	if err := s.validate(s.validator.ValidateBroadcast(in)); err != nil {
		return nil, err
	}

	step, err := s.store.FindStep(ctx, in.StepID)
	if err != nil {
		return nil, s.storeError("Step", in.StepID, err)
	}
	if step.DeletedAt != nil {
		return nil, apperrors.NotFoundWithID("Step", in.StepID)
	}
	if step.IsClaimed() {
		return nil, apperrors.Conflict("Step is already accepted")
	}

	journey, err := s.store.FindJourney(ctx, step.JourneyID)
	if err != nil {
		return nil, s.storeError("Journey", step.JourneyID, err)
	}
	if journey.DeletedAt != nil || journey.Status == model.JourneyCancelled {
		return nil, apperrors.Conflict("Journey is no longer requesting")
	}

	existing, err := s.store.FindRequestsByStep(ctx, step.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load step requests", err)
	}
	targeted := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		targeted[r.EstablishmentID] = struct{}{}
	}

	ttl := in.TTL
	if ttl == 0 {
		ttl = s.cfg.RequestTTL
	}
	now := s.now()

	var created []*model.StepRequest
	for _, estID := range in.EstablishmentIDs {
		if _, ok := targeted[estID]; ok {
			continue
		}
		r := &model.StepRequest{
			ID:              uuid.NewString(),
			StepID:          step.ID,
			EstablishmentID: estID,
			Status:          model.RequestPending,
			Version:         0,
			CreatedAt:       now,
		}
		if ttl > 0 {
			expires := now.Add(ttl)
			r.ExpiresAt = &expires
		}
		created = append(created, r)
	}

	if len(created) == 0 {
		return []*model.StepRequest{}, nil
	}

	err = s.store.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		return s.store.CreateRequests(txCtx, created)
	})
	if err != nil {
		if errors.Is(err, allocerrors.ErrDuplicate) {
			return nil, apperrors.Conflict("Step was broadcast concurrently to the same establishment")
		}
		s.cfg.Log.Error("Failed to broadcast step", "step_id", step.ID, "error", err)
		return nil, apperrors.Internal("Failed to create requests", err)
	}

	s.cfg.Log.Info("Step broadcast", "step_id", step.ID, "created", len(created), "skipped", len(in.EstablishmentIDs)-len(created))

	// A refused_all step that gains fresh requests is pending again.
	if step.Status == model.StepRefusedAll {
		change, err := s.recomputeStep(ctx, step.ID)
		if err != nil {
			s.cfg.Log.Error("Failed to recompute step", "step_id", step.ID, "error", err)
		} else if change != nil {
			s.publish([]model.StatusChange{*change})
		}
	}

	return created, nil
}

// recomputeStep rewrites an unclaimed step's status from its requests.
// Accepted is never written here: only a claim sets it.
func (s *allocationService) recomputeStep(ctx context.Context, stepID string) (*model.StatusChange, error) {
	step, err := s.store.FindStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.IsClaimed() || step.DeletedAt != nil {
		return nil, nil
	}

	requests, err := s.store.FindRequestsByStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	next := DeriveStepStatus(requests)
	if next == model.StepAccepted {
		return nil, nil
	}

	changed, err := s.store.SetStepStatus(ctx, stepID, next)
	if err != nil || !changed {
		return nil, err
	}
	change := s.stepChange(step, next)
	return &change, nil
}

func (s *allocationService) recomputeJourney(ctx context.Context, journeyID string) (*model.StatusChange, error) {
	journey, err := s.store.FindJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	steps, err := s.store.FindStepsByJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	next := DeriveJourneyStatus(steps)
	changed, err := s.store.SetJourneyStatus(ctx, journeyID, next, s.now())
	if err != nil || !changed {
		return nil, err
	}

	s.cfg.Log.Info("Journey status changed", "journey_id", journeyID, "from", journey.Status, "to", next)
	return &model.StatusChange{
		Type:       model.EventJourneyStatusChanged,
		EntityID:   journeyID,
		JourneyID:  journeyID,
		From:       journey.Status,
		To:         next,
		OccurredAt: s.now(),
	}, nil
}

func (s *allocationService) stepChange(step *model.Step, to string) model.StatusChange {
	return model.StatusChange{
		Type:       model.EventStepStatusChanged,
		EntityID:   step.ID,
		JourneyID:  step.JourneyID,
		From:       step.Status,
		To:         to,
		OccurredAt: s.now(),
	}
}

func (s *allocationService) dispatchAcceptance(req *model.StepRequest, step *model.Step) {
	requestID := req.ID
	s.effects.Dispatcher.Dispatch("provision credential", func(ctx context.Context) error {
		return s.effects.Credentials.Provision(ctx, requestID)
	})

	reqCopy := *req
	stepCopy := *step
	s.effects.Dispatcher.Dispatch("notify concierge", func(ctx context.Context) error {
		journey, err := s.store.FindJourney(ctx, stepCopy.JourneyID)
		if err != nil {
			return err
		}
		est, err := s.store.FindEstablishment(ctx, reqCopy.EstablishmentID)
		if err != nil {
			if !errors.Is(err, allocerrors.ErrNotFound) {
				return err
			}
			est = nil
		}
		return s.effects.Notifier.Notify(ctx, notifications.AcceptanceNotice(journey, &stepCopy, &reqCopy, est))
	})
}

func (s *allocationService) publish(changes []model.StatusChange) {
	for _, change := range changes {
		change := change
		s.effects.Dispatcher.Dispatch("publish "+change.Type, func(ctx context.Context) error {
			return s.effects.Events.Publish(ctx, change)
		})
	}
}

// loadVisible hides requests addressed to other establishments behind the
// same NotFound as a missing id.
func (s *allocationService) loadVisible(ctx context.Context, id *auth.Identity, requestID string) (*model.StepRequest, error) {
	requestID = sanitizer.NormalizeIdentifier(requestID)
	if requestID == "" {
		return nil, apperrors.InvalidInput("Request ID cannot be empty")
	}

	req, err := s.store.FindRequest(ctx, requestID)
	if err != nil {
		return nil, s.storeError("Request", requestID, err)
	}
	if !id.CanActFor(req.EstablishmentID) {
		return nil, apperrors.NotFoundWithID("Request", requestID)
	}
	return req, nil
}

func (s *allocationService) storeError(resource, id string, err error) error {
	if errors.Is(err, allocerrors.ErrNotFound) {
		return apperrors.NotFoundWithID(resource, id)
	}
	s.cfg.Log.Error("Store failure", "resource", resource, "id", id, "error", err)
	return apperrors.Internal("Failed to load "+resource, err)
}

func (s *allocationService) validate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(verrs.Error(), verrs.Details())
	}
	return apperrors.InvalidInput(err.Error())
}

func identity(ctx context.Context) (*auth.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return nil, apperrors.Unauthorized("Missing identity")
	}
	return id, nil
}
