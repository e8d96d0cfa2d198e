package service

import (
	"context"
	"testing"
	"time"

	apperrors "concierge/pkg/errors"
	"concierge/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acceptWithoutClaim leaves a request the way a crash right after the
// version CAS would.
func (h *harness) acceptWithoutClaim(t *testing.T, r *model.StepRequest, at time.Time) {
	t.Helper()
	by := "user-" + r.EstablishmentID
	require.NoError(t, h.store.TransitionRequest(context.Background(), r.ID, r.Version, model.RequestTransition{
		Status:        model.RequestAccepted,
		ProposedPrice: price(90),
		RespondedBy:   &by,
		RespondedAt:   at,
	}))
}

type snapshot struct {
	journey  string
	steps    map[string]string
	requests map[string]string
	versions map[string]int64
}

func (h *harness) snapshot(t *testing.T, journeyID string) snapshot {
	t.Helper()
	ctx := context.Background()
	j, err := h.store.FindJourney(ctx, journeyID)
	require.NoError(t, err)

	snap := snapshot{journey: j.Status, steps: map[string]string{}, requests: map[string]string{}, versions: map[string]int64{}}
	steps, err := h.store.FindStepsByJourney(ctx, journeyID)
	require.NoError(t, err)
	for _, s := range steps {
		snap.steps[s.ID] = s.Status
		reqs, err := h.store.FindRequestsByStep(ctx, s.ID)
		require.NoError(t, err)
		for _, r := range reqs {
			snap.requests[r.ID] = r.Status
			snap.versions[r.ID] = r.Version
		}
	}
	return snap
}

func TestReconcile_ClaimsOrphanedAcceptance(t *testing.T) {
	h := newHarness(t)
	j := h.journey(t)
	s := h.step(t, j.ID)
	r1 := h.request(t, s.ID, "est-a")
	r2 := h.request(t, s.ID, "est-b")
	h.acceptWithoutClaim(t, r1, ts())

	require.NoError(t, h.svc.Reconcile(context.Background(), j.ID))
	h.drain(t)

	step, err := h.store.FindStep(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepAccepted, step.Status)
	assert.Equal(t, r1.ID, *step.AcceptedRequestID)
	assert.Equal(t, 90.0, *step.ConfirmedPrice)
	assert.Equal(t, model.RequestSuperseded, h.reload(t, r2.ID).Status)

	journey, err := h.store.FindJourney(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JourneyConfirmed, journey.Status)
	assert.Equal(t, []string{r1.ID}, h.rec.provisioned)
}

func TestReconcile_EarliestAcceptanceWins(t *testing.T) {
	h := newHarness(t)
	j := h.journey(t)
	s := h.step(t, j.ID)
	late := h.request(t, s.ID, "est-a")
	early := h.request(t, s.ID, "est-b")

	now := ts()
	h.acceptWithoutClaim(t, late, now)
	h.acceptWithoutClaim(t, early, now.Add(-time.Second))

	require.NoError(t, h.svc.Reconcile(context.Background(), j.ID))
	h.drain(t)

	step, err := h.store.FindStep(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, early.ID, *step.AcceptedRequestID)
	assert.Equal(t, model.RequestAccepted, h.reload(t, early.ID).Status)
	assert.Equal(t, model.RequestSuperseded, h.reload(t, late.ID).Status)
}

func TestReconcile_SupersedesLeftoverPending(t *testing.T) {
	h := newHarness(t)
	j := h.journey(t)
	s := h.step(t, j.ID)
	winner := h.request(t, s.ID, "est-a")
	leftover := h.request(t, s.ID, "est-b")

	h.acceptWithoutClaim(t, winner, ts())
	require.NoError(t, h.store.ClaimStep(context.Background(), s.ID, model.StepAward{
		RequestID: winner.ID, EstablishmentID: "est-a", AcceptedAt: ts(),
	}))

	require.NoError(t, h.svc.Reconcile(context.Background(), j.ID))
	h.drain(t)

	assert.Equal(t, model.RequestSuperseded, h.reload(t, leftover.ID).Status)
	journey, err := h.store.FindJourney(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JourneyConfirmed, journey.Status)
}

func TestReconcile_FixedPoint(t *testing.T) {
	h := newHarness(t)
	j := h.journey(t)
	s1 := h.step(t, j.ID)
	s2 := h.step(t, j.ID)
	a := h.request(t, s1.ID, "est-a")
	h.request(t, s1.ID, "est-b")
	refused := h.request(t, s2.ID, "est-c")
	h.acceptWithoutClaim(t, a, ts())
	require.NoError(t, h.store.TransitionRequest(context.Background(), refused.ID, 0, model.RequestTransition{Status: model.RequestRefused}))

	ctx := context.Background()
	require.NoError(t, h.svc.Reconcile(ctx, j.ID))
	first := h.snapshot(t, j.ID)

	assert.Equal(t, model.JourneyPartiallyAccepted, first.journey)
	assert.Equal(t, model.StepRefusedAll, first.steps[s2.ID])

	require.NoError(t, h.svc.Reconcile(ctx, j.ID))
	assert.Equal(t, first, h.snapshot(t, j.ID))
	h.drain(t)
}

func TestReconcile_LeavesCancelledJourney(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := ts()
	j := &model.Journey{
		ID: uuid.NewString(), Title: "Called off", DesiredStart: now, DesiredEnd: now,
		PartySize: 1, City: "Nice", ConciergeID: "c", Status: model.JourneyCancelled,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, h.store.CreateJourney(ctx, j))
	s := h.step(t, j.ID)
	r := h.request(t, s.ID, "est-a")
	h.acceptWithoutClaim(t, r, now)

	require.NoError(t, h.svc.Reconcile(ctx, j.ID))
	h.drain(t)

	journey, err := h.store.FindJourney(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JourneyCancelled, journey.Status)
}

func TestReconcile_UnknownJourney(t *testing.T) {
	h := newHarness(t)
	err := h.svc.Reconcile(context.Background(), uuid.NewString())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestReconcileAll(t *testing.T) {
	h := newHarness(t)
	var orphans []*model.StepRequest
	for i := 0; i < 3; i++ {
		j := h.journey(t)
		s := h.step(t, j.ID)
		r := h.request(t, s.ID, "est-a")
		h.acceptWithoutClaim(t, r, ts())
		orphans = append(orphans, r)
	}

	n, err := h.svc.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	h.drain(t)

	for _, r := range orphans {
		step, err := h.store.FindStep(context.Background(), r.StepID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, *step.AcceptedRequestID)
	}
}

func TestExpire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	j := h.journey(t)
	s := h.step(t, j.ID)

	past := ts().Add(-time.Minute)
	stale := &model.StepRequest{ID: uuid.NewString(), StepID: s.ID, EstablishmentID: "est-a", Status: model.RequestPending, ExpiresAt: &past, CreatedAt: ts()}
	require.NoError(t, h.store.CreateRequests(ctx, []*model.StepRequest{stale}))
	refused := h.request(t, s.ID, "est-b")
	require.NoError(t, h.svc.Refuse(actingFor("est-b"), refused.ID, &model.RefuseInput{}))

	n, err := h.svc.Expire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	h.drain(t)

	got := h.reload(t, stale.ID)
	assert.Equal(t, model.RequestExpired, got.Status)
	assert.Equal(t, int64(1), got.Version)

	step, err := h.store.FindStep(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepRefusedAll, step.Status)

	err = h.svc.Accept(actingFor("est-a"), stale.ID, &model.AcceptInput{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyProcessed))

	n, err = h.svc.Expire(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
