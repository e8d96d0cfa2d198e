package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	allocerrors "concierge/internal/allocation/errors"
	"concierge/pkg/config"
	mongotx "concierge/pkg/db/mongo"
	"concierge/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	JourneysCollection       = "Journeys"
	StepsCollection          = "Steps"
	StepRequestsCollection   = "Step_requests"
	EstablishmentsCollection = "Establishments"
	CredentialsCollection    = "Scan_credentials"
)

type mongoStore struct {
	cfg            *config.Config
	client         *mongo.Client
	journeys       *mongo.Collection
	steps          *mongo.Collection
	requests       *mongo.Collection
	establishments *mongo.Collection
	credentials    *mongo.Collection
	txManager      mongotx.TransactionManager
}

// NewMongoStore needs a replica set: Accept runs its claim and the sibling
// supersede inside one transaction.
func NewMongoStore(cfg *config.Config) Store {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoStore{
		cfg:            cfg,
		client:         cfg.Client.Mongo,
		journeys:       db.Collection(JourneysCollection),
		steps:          db.Collection(StepsCollection),
		requests:       db.Collection(StepRequestsCollection),
		establishments: db.Collection(EstablishmentsCollection),
		credentials:    db.Collection(CredentialsCollection),
		txManager:      mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (s *mongoStore) FindRequest(ctx context.Context, id string) (*model.StepRequest, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var r model.StepRequest
	if err := s.requests.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find step request: %w", err)
	}
	return &r, nil
}

func (s *mongoStore) findRequests(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.StepRequest, error) {
	cursor, err := s.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*model.StepRequest
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) FindRequestsByStep(ctx context.Context, stepID string) ([]*model.StepRequest, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	out, err := s.findRequests(ctx, bson.M{"step_id": stepID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find step requests: %w", err)
	}
	return out, nil
}

func (s *mongoStore) ListRequests(ctx context.Context, filter model.RequestFilter) ([]*model.StepRequest, int64, error) {
	if len(filter.EstablishmentIDs) == 0 {
		return []*model.StepRequest{}, 0, nil
	}

	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	query := bson.M{"establishment_id": bson.M{"$in": filter.EstablishmentIDs}}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	total, err := s.requests.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count step requests: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(config.NormalizePaginationLimit(filter.Limit))).
		SetSkip(config.NormalizeOffset(filter.Offset))

	out, err := s.findRequests(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list step requests: %w", err)
	}
	if out == nil {
		out = []*model.StepRequest{}
	}
	return out, total, nil
}

func (s *mongoStore) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*model.StepRequest, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	query := bson.M{
		"status":     model.RequestPending,
		"expires_at": bson.M{"$ne": nil, "$lte": now.UTC()},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	out, err := s.findRequests(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired step requests: %w", err)
	}
	return out, nil
}

func (s *mongoStore) CreateRequests(ctx context.Context, requests []*model.StepRequest) error {
	if len(requests) == 0 {
		return nil
	}

	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	docs := make([]any, len(requests))
	for i, r := range requests {
		docs[i] = r
	}
	if _, err := s.requests.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: step request", allocerrors.ErrDuplicate)
		}
		return fmt.Errorf("failed to create step requests: %w", err)
	}
	return nil
}

func (s *mongoStore) TransitionRequest(ctx context.Context, id string, expectedVersion int64, t model.RequestTransition) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{"status": t.Status}
	if t.ProposedPrice != nil {
		set["proposed_price"] = *t.ProposedPrice
	}
	if t.ResponseNote != nil {
		set["response_note"] = *t.ResponseNote
	}
	if t.RespondedBy != nil {
		set["responded_by"] = *t.RespondedBy
	}
	if !t.RespondedAt.IsZero() {
		set["responded_at"] = t.RespondedAt.UTC()
	}

	result, err := s.requests.UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}})
	if err != nil {
		return fmt.Errorf("failed to transition step request: %w", err)
	}
	if result.MatchedCount == 0 {
		return allocerrors.ErrVersionConflict
	}
	return nil
}

func (s *mongoStore) SupersedePending(ctx context.Context, stepID, exceptRequestID string) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	result, err := s.requests.UpdateMany(ctx,
		bson.M{"step_id": stepID, "status": model.RequestPending, "_id": bson.M{"$ne": exceptRequestID}},
		bson.M{"$set": bson.M{"status": model.RequestSuperseded}, "$inc": bson.M{"version": 1}})
	if err != nil {
		return 0, fmt.Errorf("failed to supersede step requests: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *mongoStore) FindStep(ctx context.Context, id string) (*model.Step, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var st model.Step
	if err := s.steps.FindOne(ctx, bson.M{"_id": id}).Decode(&st); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find step: %w", err)
	}
	return &st, nil
}

func (s *mongoStore) FindStepsByJourney(ctx context.Context, journeyID string) ([]*model.Step, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.steps.Find(ctx, bson.M{"journey_id": journeyID, "deleted_at": nil}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find steps: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*model.Step
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	return out, nil
}

func (s *mongoStore) CreateStep(ctx context.Context, st *model.Step) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if _, err := s.steps.InsertOne(ctx, st); err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}
	return nil
}

func (s *mongoStore) ClaimStep(ctx context.Context, stepID string, award model.StepAward) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{
		"status":                    model.StepAccepted,
		"accepted_request_id":       award.RequestID,
		"accepted_establishment_id": award.EstablishmentID,
		"accepted_at":               award.AcceptedAt.UTC(),
	}
	if award.ConfirmedPrice != nil {
		set["confirmed_price"] = *award.ConfirmedPrice
	}

	filter := bson.M{
		"_id":        stepID,
		"deleted_at": nil,
		"$or": []bson.M{
			{"accepted_request_id": nil},
			{"accepted_request_id": award.RequestID},
		},
	}

	result, err := s.steps.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to claim step: %w", err)
	}
	if result.MatchedCount == 0 {
		if _, err := s.FindStep(ctx, stepID); errors.Is(err, allocerrors.ErrNotFound) {
			return allocerrors.ErrNotFound
		}
		return allocerrors.ErrStepClaimed
	}
	return nil
}

func (s *mongoStore) SetStepStatus(ctx context.Context, stepID, status string) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	result, err := s.steps.UpdateOne(ctx,
		bson.M{
			"_id":                 stepID,
			"deleted_at":          nil,
			"accepted_request_id": nil,
			"status":              bson.M{"$ne": status},
		},
		bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return false, fmt.Errorf("failed to set step status: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (s *mongoStore) FindJourney(ctx context.Context, id string) (*model.Journey, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var j model.Journey
	if err := s.journeys.FindOne(ctx, bson.M{"_id": id}).Decode(&j); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find journey: %w", err)
	}
	return &j, nil
}

func (s *mongoStore) ListActiveJourneyIDs(ctx context.Context, limit int, offset int64) ([]string, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := s.journeys.Find(ctx,
		bson.M{"deleted_at": nil, "status": bson.M{"$ne": model.JourneyCancelled}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode journey ids: %w", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (s *mongoStore) CreateJourney(ctx context.Context, j *model.Journey) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if _, err := s.journeys.InsertOne(ctx, j); err != nil {
		return fmt.Errorf("failed to create journey: %w", err)
	}
	return nil
}

func (s *mongoStore) SetJourneyStatus(ctx context.Context, journeyID, status string, at time.Time) (bool, error) {
	allowed := model.JourneyStatusesAtOrBelow(status)
	if len(allowed) == 0 {
		return false, nil
	}

	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	result, err := s.journeys.UpdateOne(ctx,
		bson.M{
			"_id":        journeyID,
			"deleted_at": nil,
			"status":     bson.M{"$in": allowed, "$ne": status},
		},
		bson.M{"$set": bson.M{"status": status, "updated_at": at.UTC()}})
	if err != nil {
		return false, fmt.Errorf("failed to set journey status: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (s *mongoStore) FindEstablishment(ctx context.Context, id string) (*model.Establishment, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var e model.Establishment
	if err := s.establishments.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find establishment: %w", err)
	}
	return &e, nil
}

func (s *mongoStore) UpsertEstablishment(ctx context.Context, e *model.Establishment) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"name":          e.Name,
			"contact_email": e.ContactEmail,
			"contact_phone": e.ContactPhone,
		},
		"$setOnInsert": bson.M{"created_at": e.CreatedAt.UTC()},
	}
	_, err := s.establishments.UpdateOne(ctx, bson.M{"_id": e.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert establishment: %w", err)
	}
	return nil
}

func (s *mongoStore) InsertCredentialIfAbsent(ctx context.Context, cred *model.ScanCredential) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{"$setOnInsert": bson.M{"secret": cred.Secret, "created_at": cred.CreatedAt.UTC()}}
	result, err := s.credentials.UpdateOne(ctx, bson.M{"_id": cred.RequestID}, update, options.Update().SetUpsert(true))
	if err != nil {
		// Two concurrent upserts on the same _id: the loser sees E11000.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert scan credential: %w", err)
	}
	return result.UpsertedCount > 0, nil
}

func (s *mongoStore) FindCredential(ctx context.Context, requestID string) (*model.ScanCredential, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var c model.ScanCredential
	if err := s.credentials.FindOne(ctx, bson.M{"_id": requestID}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, allocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find scan credential: %w", err)
	}
	return &c, nil
}

func (s *mongoStore) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.txManager.ExecuteTransaction(ctx, fn)
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}
