package lifecycle

import (
	"context"
	"time"

	"github.com/scrutin/api.scrutin.app/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MongoStore struct{}

func (MongoStore) Due(ctx context.Context, now time.Time) ([]mongo.Election, error) {
	cursor, err := mongo.Database.Collection("elections").Find(ctx, bson.M{
		"$or": bson.A{
			bson.M{"status": mongo.ElectionDraft, "start_at": bson.M{"$lte": now}},
			bson.M{"status": mongo.ElectionActive, "end_at": bson.M{"$lte": now}},
		},
	})
	if err != nil {
		return nil, err
	}
	var due []mongo.Election
	if err := cursor.All(ctx, &due); err != nil {
		return nil, err
	}
	return due, nil
}

func (MongoStore) Transition(ctx context.Context, electionID primitive.ObjectID, from, to string) (bool, error) {
	res, err := mongo.Database.Collection("elections").UpdateOne(ctx, bson.M{
		"_id":    electionID,
		"status": from,
	}, bson.M{
		"$set": bson.M{"status": to},
	})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
