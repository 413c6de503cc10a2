package ballot

import (
	"context"
	"time"

	"github.com/scrutin/api.scrutin.app/mongo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tx is the view of the store inside one atomic cast unit. Every read sees
// the unit's snapshot and every write is discarded if the unit aborts.
type Tx interface {
	// Voter looks a voter up by token hash scoped to one election.
	// Returns nil without error when no such voter exists.
	Voter(ctx context.Context, tokenHash string, electionID primitive.ObjectID) (*mongo.Voter, error)
	// Election reads the election fresh, status included.
	// Returns nil without error when no such election exists.
	Election(ctx context.Context, electionID primitive.ObjectID) (*mongo.Election, error)
	// Reserve flips hasVoted false -> true and stamps votedAt, conditioned
	// on hasVoted still being false. Returns false when the flip was lost,
	// i.e. some other cast already holds the credential.
	Reserve(ctx context.Context, voterID primitive.ObjectID, at time.Time) (bool, error)
	// InsertVotes records the anonymized rows.
	InsertVotes(ctx context.Context, votes []mongo.Vote) error
}

// Store runs a function inside one all-or-nothing transactional unit.
// Any error returned by fn aborts the unit, the Reserve flip included.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Broadcaster recomputes and pushes the live tally for an election.
// Called after commit only; failures are logged, never surfaced.
type Broadcaster interface {
	Broadcast(ctx context.Context, electionID primitive.ObjectID) error
}
