package registry

import (
	"context"

	"github.com/scrutin/api.scrutin.app/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MongoStore struct{}

func (MongoStore) Election(ctx context.Context, electionID primitive.ObjectID) (*mongo.Election, error) {
	election := &mongo.Election{}
	err := mongo.Database.Collection("elections").FindOne(ctx, bson.M{"_id": electionID}).Decode(election)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return election, nil
}

func (MongoStore) InsertVoter(ctx context.Context, voter *mongo.Voter) error {
	res, err := mongo.Database.Collection("voters").InsertOne(ctx, voter)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}
	voter.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (MongoStore) Voters(ctx context.Context, electionID primitive.ObjectID) ([]mongo.Voter, error) {
	cursor, err := mongo.Database.Collection("voters").Find(ctx, bson.M{"election_id": electionID})
	if err != nil {
		return nil, err
	}
	var voters []mongo.Voter
	if err := cursor.All(ctx, &voters); err != nil {
		return nil, err
	}
	return voters, nil
}
