package registry

import (
	"context"
	"testing"
	"time"

	"github.com/scrutin/api.scrutin.app/crypto"
	"github.com/scrutin/api.scrutin.app/mongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memStore struct {
	election *mongo.Election
	voters   []*mongo.Voter
}

func (s *memStore) Election(ctx context.Context, electionID primitive.ObjectID) (*mongo.Election, error) {
	if s.election != nil && s.election.ID == electionID {
		return s.election, nil
	}
	return nil, nil
}

func (s *memStore) InsertVoter(ctx context.Context, voter *mongo.Voter) error {
	for _, existing := range s.voters {
		sameEmail := existing.ElectionID == voter.ElectionID && existing.EmailHash == voter.EmailHash
		if sameEmail || existing.TokenHash == voter.TokenHash {
			return ErrDuplicate
		}
	}
	voter.ID = primitive.NewObjectID()
	s.voters = append(s.voters, voter)
	return nil
}

func (s *memStore) Voters(ctx context.Context, electionID primitive.ObjectID) ([]mongo.Voter, error) {
	var out []mongo.Voter
	for _, voter := range s.voters {
		if voter.ElectionID == electionID {
			out = append(out, *voter)
		}
	}
	return out, nil
}

func newStore() *memStore {
	return &memStore{election: &mongo.Election{
		ID:     primitive.NewObjectID(),
		Slug:   "board-2026",
		Status: mongo.ElectionDraft,
	}}
}

func TestImportMintsOneCredentialPerEntry(t *testing.T) {
	require.NoError(t, crypto.SetKey(make([]byte, 32)))
	store := newStore()
	service := NewService(store, "https://vote.example.com/")

	result, err := service.Import(context.Background(), store.election.ID, []Entry{
		{Name: "Alice", Email: "alice@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
	})
	require.NoError(t, err)

	assert.Len(t, result.Accepted, 2)
	assert.Empty(t, result.Rejected)
	require.Len(t, store.voters, 2)

	for i, accepted := range result.Accepted {
		assert.Contains(t, accepted.Link, "https://vote.example.com/vote/board-2026?token=")
		voter := store.voters[i]
		assert.False(t, voter.HasVoted)
		assert.NotEmpty(t, voter.TokenHash)
		assert.NotEmpty(t, voter.EmailHash)
		assert.NotContains(t, accepted.Link, voter.TokenHash, "link carries the raw token, not the hash")
		assert.NotEqual(t, "Alice", voter.NameEncrypted)
	}
	assert.NotEqual(t, store.voters[0].TokenHash, store.voters[1].TokenHash)
}

func TestImportSkipsDuplicatesAndContinues(t *testing.T) {
	store := newStore()
	service := NewService(store, "https://vote.example.com")

	result, err := service.Import(context.Background(), store.election.ID, []Entry{
		{Email: "alice@example.com"},
		{Email: " ALICE@example.com "}, // same email after normalization
		{Email: "bob@example.com"},
		{Email: ""},
	})
	require.NoError(t, err)

	assert.Len(t, result.Accepted, 2)
	require.Len(t, result.Rejected, 2)
	assert.Equal(t, "duplicate", result.Rejected[0].Reason)
	assert.Equal(t, "missing email", result.Rejected[1].Reason)
	assert.Len(t, store.voters, 2, "batch continued past the rejections")
}

func TestImportUnknownElection(t *testing.T) {
	store := newStore()
	service := NewService(store, "https://vote.example.com")

	_, err := service.Import(context.Background(), primitive.NewObjectID(), []Entry{{Email: "a@b.c"}})
	assert.ErrorIs(t, err, ErrElectionNotFound)
}

func TestRollDecryptsNames(t *testing.T) {
	require.NoError(t, crypto.SetKey(make([]byte, 32)))
	store := newStore()
	service := NewService(store, "https://vote.example.com")

	_, err := service.Import(context.Background(), store.election.ID, []Entry{
		{Name: "Alice", Email: "alice@example.com"},
	})
	require.NoError(t, err)

	votedAt := time.Now()
	store.voters[0].HasVoted = true
	store.voters[0].VotedAt = &votedAt

	roll, err := service.Roll(context.Background(), store.election.ID)
	require.NoError(t, err)
	require.Len(t, roll, 1)
	assert.Equal(t, "Alice", roll[0].Name)
	assert.True(t, roll[0].HasVoted)
	require.NotNil(t, roll[0].VotedAt)
}

func TestRollUnreadableNameShowsUnavailable(t *testing.T) {
	require.NoError(t, crypto.SetKey(make([]byte, 32)))
	store := newStore()
	store.voters = append(store.voters, &mongo.Voter{
		ID:            primitive.NewObjectID(),
		ElectionID:    store.election.ID,
		NameEncrypted: "not:ciphertext",
	})
	service := NewService(store, "https://vote.example.com")

	roll, err := service.Roll(context.Background(), store.election.ID)
	require.NoError(t, err)
	require.Len(t, roll, 1)
	assert.Equal(t, "unavailable", roll[0].Name)
}

func TestRollOmitsIdentifyingFields(t *testing.T) {
	require.NoError(t, crypto.SetKey(make([]byte, 32)))
	store := newStore()
	service := NewService(store, "https://vote.example.com")

	_, err := service.Import(context.Background(), store.election.ID, []Entry{
		{Name: "Alice", Email: "alice@example.com"},
	})
	require.NoError(t, err)

	roll, err := service.Roll(context.Background(), store.election.ID)
	require.NoError(t, err)
	// the roll type itself can only carry name and participation
	assert.Equal(t, RollEntry{Name: "Alice", HasVoted: false, VotedAt: nil}, roll[0])
}
