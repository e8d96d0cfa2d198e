package mongo

import (
	"testing"

	"concierge/internal/allocation/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDefinitions_CoverEveryCollection(t *testing.T) {
	defs := definitions()
	for _, name := range []string{
		repository.JourneysCollection,
		repository.StepsCollection,
		repository.StepRequestsCollection,
		repository.EstablishmentsCollection,
		repository.CredentialsCollection,
	} {
		def, ok := defs[name]
		require.True(t, ok, "missing collection %s", name)
		assert.NotNil(t, def.Validator["$jsonSchema"], "collection %s has no schema", name)
	}
}

func TestStepRequestsIndexes_OneRequestPerEstablishment(t *testing.T) {
	var unique []bson.D
	for _, idx := range StepRequestsIndexes {
		if idx.Options != nil && idx.Options.Unique != nil && *idx.Options.Unique {
			unique = append(unique, idx.Keys.(bson.D))
		}
	}

	require.Len(t, unique, 1)
	assert.Equal(t, "step_id", unique[0][0].Key)
	assert.Equal(t, "establishment_id", unique[0][1].Key)
}
