package validators

import (
	"concierge/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

var JourneyValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"title",
			"concierge_id",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 36,
				"maxLength": 36,
			},

			"title": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 200,
			},

			"party_size": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
				"maximum":  500,
			},

			"concierge_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					model.JourneyRequesting,
					model.JourneyPartiallyAccepted,
					model.JourneyConfirmed,
					model.JourneyCancelled,
				},
			},

			"deleted_at": bson.M{
				"bsonType": "date",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
