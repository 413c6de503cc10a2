package stats

import (
	"context"

	"github.com/scrutin/api.scrutin.app/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MongoStore struct{}

func (MongoStore) VoteCounts(ctx context.Context, electionID primitive.ObjectID) ([]Entry, error) {
	cursor, err := mongo.Database.Collection("votes").Aggregate(ctx, []bson.M{
		{"$match": bson.M{"election_id": electionID}},
		{"$group": bson.M{
			"_id": bson.M{
				"question_id": "$question_id",
				"option_id":   "$option_id",
			},
			"count": bson.M{"$sum": 1},
		}},
	})
	if err != nil {
		return nil, err
	}

	var grouped []struct {
		ID struct {
			QuestionID primitive.ObjectID `bson:"question_id"`
			OptionID   primitive.ObjectID `bson:"option_id"`
		} `bson:"_id"`
		Count int32 `bson:"count"`
	}
	if err := cursor.All(ctx, &grouped); err != nil {
		return nil, err
	}

	entries := make([]Entry, len(grouped))
	for i, group := range grouped {
		entries[i] = Entry{
			QuestionID: group.ID.QuestionID.Hex(),
			OptionID:   group.ID.OptionID.Hex(),
			Count:      group.Count,
		}
	}
	return entries, nil
}
