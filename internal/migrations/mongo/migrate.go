package mongo

import (
	"context"
	"fmt"

	"concierge/internal/allocation/repository"
	"concierge/internal/migrations/mongo/validators"
	"concierge/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	JourneysIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "deleted_at", Value: 1}}},
		{Keys: bson.D{{Key: "concierge_id", Value: 1}}},
	}

	StepsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "journey_id", Value: 1}, {Key: "order", Value: 1}}},
	}

	StepRequestsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "step_id", Value: 1}, {Key: "establishment_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "establishment_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func definitions() map[string]collectionDef {
	return map[string]collectionDef{
		repository.JourneysCollection: {
			Indexes:   JourneysIndexes,
			Validator: validators.JourneyValidator,
		},
		repository.StepsCollection: {
			Indexes:   StepsIndexes,
			Validator: validators.StepValidator,
		},
		repository.StepRequestsCollection: {
			Indexes:   StepRequestsIndexes,
			Validator: validators.StepRequestValidator,
		},
		repository.EstablishmentsCollection: {
			Validator: validators.EstablishmentValidator,
		},
		repository.CredentialsCollection: {
			Validator: validators.CredentialValidator,
		},
	}
}

// RunMigration creates the allocation collections with their validators and
// indexes. It is safe to run repeatedly.
func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range definitions() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if len(def.Indexes) == 0 {
			continue
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
