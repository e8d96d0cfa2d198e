package validators

import (
	"concierge/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

// StepValidator allows accepted_request_id to be null: the claim filter
// matches on it explicitly.
var StepValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"journey_id",
			"order",
			"universe",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"journey_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"order": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"universe": bson.M{
				"bsonType":  "string",
				"maxLength": 50,
			},

			"budget_min": bson.M{"bsonType": "double", "minimum": 0},
			"budget_max": bson.M{"bsonType": "double", "minimum": 0},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					model.StepPending,
					model.StepAccepted,
					model.StepRefusedAll,
				},
			},

			"accepted_request_id": bson.M{
				"bsonType": []string{"string", "null"},
			},
		},
	},
}
