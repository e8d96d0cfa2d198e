package repository

import (
	"context"
	"time"

	"concierge/pkg/config"
	"concierge/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// Store is the conditional store adapter: the only path that mutates
// journeys, steps and step requests. Every write that can race is a single
// conditional update whose zero-rows outcome is reported as a sentinel from
// internal/allocation/errors.
type Store interface {
	FindRequest(ctx context.Context, id string) (*model.StepRequest, error)
	FindRequestsByStep(ctx context.Context, stepID string) ([]*model.StepRequest, error)
	ListRequests(ctx context.Context, filter model.RequestFilter) ([]*model.StepRequest, int64, error)
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.StepRequest, error)
	CreateRequests(ctx context.Context, requests []*model.StepRequest) error

	// TransitionRequest applies t where id and version both match, bumping
	// version by one. Zero rows yields ErrVersionConflict.
	TransitionRequest(ctx context.Context, id string, expectedVersion int64, t model.RequestTransition) error

	// SupersedePending moves every pending sibling of exceptRequestID to
	// superseded and returns how many moved.
	SupersedePending(ctx context.Context, stepID, exceptRequestID string) (int64, error)

	FindStep(ctx context.Context, id string) (*model.Step, error)
	FindStepsByJourney(ctx context.Context, journeyID string) ([]*model.Step, error)
	CreateStep(ctx context.Context, step *model.Step) error

	// ClaimStep awards the step to award.RequestID unless another request
	// already holds it, in which case ErrStepClaimed. Re-claiming by the
	// holder succeeds.
	ClaimStep(ctx context.Context, stepID string, award model.StepAward) error

	// SetStepStatus writes status on an unclaimed step. It reports whether
	// the stored value changed.
	SetStepStatus(ctx context.Context, stepID, status string) (bool, error)

	FindJourney(ctx context.Context, id string) (*model.Journey, error)
	ListActiveJourneyIDs(ctx context.Context, limit int, offset int64) ([]string, error)
	CreateJourney(ctx context.Context, journey *model.Journey) error

	// SetJourneyStatus writes status only when the current status ranks at
	// or below it, so a stale recomputation never demotes a journey and a
	// cancelled journey is left alone. It reports whether the value changed.
	SetJourneyStatus(ctx context.Context, journeyID, status string, at time.Time) (bool, error)

	FindEstablishment(ctx context.Context, id string) (*model.Establishment, error)
	UpsertEstablishment(ctx context.Context, est *model.Establishment) error

	// InsertCredentialIfAbsent stores cred unless one exists for the same
	// request and reports whether it inserted.
	InsertCredentialIfAbsent(ctx context.Context, cred *model.ScanCredential) (bool, error)
	FindCredential(ctx context.Context, requestID string) (*model.ScanCredential, error)

	// ExecuteTransaction may call fn more than once on Mongo.
	ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
}

// withTimeout bounds ctx by timeout unless it already ends sooner. A mongo
// SessionContext is returned as is so calls stay inside the transaction.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// NewStore picks the adapter for cfg.StoreDriver.
func NewStore(cfg *config.Config) Store {
	switch cfg.StoreDriver {
	case config.StoreMySQL, config.StoreSQLite:
		return NewSQLStore(cfg)
	default:
		return NewMongoStore(cfg)
	}
}
