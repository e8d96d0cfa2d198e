package validators

import (
	"concierge/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

var StepRequestValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"step_id",
			"establishment_id",
			"status",
			"version",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"step_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"establishment_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					model.RequestPending,
					model.RequestAccepted,
					model.RequestRefused,
					model.RequestSuperseded,
					model.RequestExpired,
				},
			},

			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
			},

			"proposed_price": bson.M{
				"bsonType": "double",
				"minimum":  0,
			},

			"response_note": bson.M{
				"bsonType":  "string",
				"maxLength": 1000,
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
