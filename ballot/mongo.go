package ballot

import (
	"context"
	"time"

	"github.com/scrutin/api.scrutin.app/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mgo "go.mongodb.org/mongo-driver/mongo"
)

// MongoStore backs the cast unit with a mongodb multi-document transaction.
// The Reserve flip is a conditional FindOneAndUpdate, so even outside the
// transaction's isolation two racing casts cannot both win the credential.
type MongoStore struct{}

func (MongoStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	session, err := mongo.Client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sctx mgo.SessionContext) (interface{}, error) {
		return nil, fn(sctx, mongoTx{})
	})
	return err
}

type mongoTx struct{}

func (mongoTx) Voter(ctx context.Context, tokenHash string, electionID primitive.ObjectID) (*mongo.Voter, error) {
	voter := &mongo.Voter{}
	err := mongo.Database.Collection("voters").FindOne(ctx, bson.M{
		"token_hash":  tokenHash,
		"election_id": electionID,
	}).Decode(voter)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return voter, nil
}

func (mongoTx) Election(ctx context.Context, electionID primitive.ObjectID) (*mongo.Election, error) {
	election := &mongo.Election{}
	err := mongo.Database.Collection("elections").FindOne(ctx, bson.M{
		"_id": electionID,
	}).Decode(election)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return election, nil
}

func (mongoTx) Reserve(ctx context.Context, voterID primitive.ObjectID, at time.Time) (bool, error) {
	err := mongo.Database.Collection("voters").FindOneAndUpdate(ctx, bson.M{
		"_id":       voterID,
		"has_voted": false,
	}, bson.M{
		"$set": bson.M{
			"has_voted": true,
			"voted_at":  at,
		},
	}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (mongoTx) InsertVotes(ctx context.Context, votes []mongo.Vote) error {
	docs := make([]interface{}, len(votes))
	for i := range votes {
		docs[i] = votes[i]
	}
	_, err := mongo.Database.Collection("votes").InsertMany(ctx, docs)
	return err
}
