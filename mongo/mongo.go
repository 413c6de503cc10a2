package mongo

import (
	"context"

	"github.com/scrutin/api.scrutin.app/configure"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	log "github.com/sirupsen/logrus"
)

var Client *mongo.Client
var Database *mongo.Database
var Ctx = context.TODO()

var ErrNoDocuments = mongo.ErrNoDocuments

// IsDuplicateKeyError reports whether err is a unique index violation.
func IsDuplicateKeyError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// Setup connects to mongodb and ensures the indexes the voting core relies
// on: token lookups must be an equality match on a unique hash, duplicate
// invitations must collide on (election, email hash), and tallies group by
// (election, question).
func Setup() {
	clientOptions := options.Client().ApplyURI(configure.Config.GetString("mongo_uri"))
	client, err := mongo.Connect(Ctx, clientOptions)
	if err != nil {
		panic(err)
	}

	err = client.Ping(Ctx, nil)
	if err != nil {
		panic(err)
	}

	Client = client
	Database = client.Database(configure.Config.GetString("mongo_db"))

	_, err = Database.Collection("elections").Indexes().CreateMany(Ctx, []mongo.IndexModel{
		{Keys: bson.M{"slug": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"status": 1}},
	})
	if err != nil {
		log.Errorf("mongodb, err=%v", err)
		return
	}

	_, err = Database.Collection("voters").Indexes().CreateMany(Ctx, []mongo.IndexModel{
		{Keys: bson.M{"token_hash": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "election_id", Value: 1}, {Key: "email_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		log.Errorf("mongodb, err=%v", err)
		return
	}

	_, err = Database.Collection("votes").Indexes().CreateMany(Ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "election_id", Value: 1}, {Key: "question_id", Value: 1}}},
	})
	if err != nil {
		log.Errorf("mongodb, err=%v", err)
		return
	}
}
