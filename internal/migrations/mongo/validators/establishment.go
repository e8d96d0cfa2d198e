package validators

import "go.mongodb.org/mongo-driver/bson"

var EstablishmentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"name",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 200,
			},

			"contact_phone": bson.M{
				"bsonType": "string",
				"pattern":  `^\+[1-9][0-9]{6,14}$`,
			},
		},
	},
}

var CredentialValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "secret", "created_at"},
		"properties": bson.M{
			"secret": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
		},
	},
}
