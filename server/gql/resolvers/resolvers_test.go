package resolvers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/scrutin/api.scrutin.app/ballot"
	"github.com/scrutin/api.scrutin.app/mongo"
	"github.com/scrutin/api.scrutin.app/registry"
	"github.com/scrutin/api.scrutin.app/stats"
	"github.com/scrutin/api.scrutin.app/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeCaster struct {
	err     error
	choices []ballot.Choice
}

func (f *fakeCaster) Cast(ctx context.Context, rawToken string, electionID primitive.ObjectID, choices []ballot.Choice) error {
	f.choices = choices
	return f.err
}

type fakeRoll struct {
	result *registry.ImportResult
	roll   []registry.RollEntry
	err    error
}

func (f *fakeRoll) Import(ctx context.Context, electionID primitive.ObjectID, entries []registry.Entry) (*registry.ImportResult, error) {
	return f.result, f.err
}

func (f *fakeRoll) Roll(ctx context.Context, electionID primitive.ObjectID) ([]registry.RollEntry, error) {
	return f.roll, f.err
}

type fakeAggregator struct {
	entries []stats.Entry
	err     error
}

func (f *fakeAggregator) Compute(ctx context.Context, electionID primitive.ObjectID) ([]stats.Entry, error) {
	return f.entries, f.err
}

func newResolver(caster Caster, roll Roll, agg Aggregator) *RootResolver {
	return &RootResolver{
		mtx:      &sync.Mutex{},
		subs:     make(map[string][]chan stats.Update),
		ballots:  caster,
		voters:   roll,
		tallies:  agg,
		adminKey: "hunter2",
	}
}

func adminCtx() context.Context {
	return context.WithValue(context.Background(), utils.Key("admin_key"), "hunter2")
}

func castArgs() struct {
	Token      string
	ElectionID string
	Choices    []choiceInput
} {
	return struct {
		Token      string
		ElectionID string
		Choices    []choiceInput
	}{
		Token:      "sometoken",
		ElectionID: primitive.NewObjectID().Hex(),
		Choices: []choiceInput{
			{QuestionID: primitive.NewObjectID().Hex(), OptionIDs: []string{primitive.NewObjectID().Hex()}},
		},
	}
}

func TestCastBallotStateMapping(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		state string
	}{
		{"committed", nil, "SUCCESS"},
		{"invalid token", ballot.ErrInvalidToken, "INVALID_TOKEN"},
		{"already voted", ballot.ErrAlreadyVoted, "ALREADY_VOTED"},
		{"draft", &ballot.NotActiveError{Status: mongo.ElectionDraft}, "ELECTION_NOT_STARTED"},
		{"ended", &ballot.NotActiveError{Status: mongo.ElectionEnded}, "ELECTION_ENDED"},
		{"archived", &ballot.NotActiveError{Status: mongo.ElectionArchived}, "ELECTION_ENDED"},
		{"incomplete", ballot.ErrIncompleteBallot, "INCOMPLETE_BALLOT"},
		{"invalid choice", ballot.ErrInvalidChoice, "INVALID_CHOICE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newResolver(&fakeCaster{err: tc.err}, &fakeRoll{}, &fakeAggregator{})
			state, err := r.CastBallot(context.Background(), castArgs())
			require.NoError(t, err)
			assert.Equal(t, tc.state, state)
		})
	}
}

func TestCastBallotInternalErrorStaysGeneric(t *testing.T) {
	r := newResolver(&fakeCaster{err: errors.New("mongo: connection reset")}, &fakeRoll{}, &fakeAggregator{})
	_, err := r.CastBallot(context.Background(), castArgs())
	require.Error(t, err)
	assert.Equal(t, errInternalServer, err, "storage detail never reaches the voter")
}

func TestCastBallotBadElectionID(t *testing.T) {
	r := newResolver(&fakeCaster{}, &fakeRoll{}, &fakeAggregator{})
	args := castArgs()
	args.ElectionID = "not-an-id"
	state, err := r.CastBallot(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, "INVALID_TOKEN", state)
}

func TestCastBallotForwardsChoices(t *testing.T) {
	caster := &fakeCaster{}
	r := newResolver(caster, &fakeRoll{}, &fakeAggregator{})
	args := castArgs()
	_, err := r.CastBallot(context.Background(), args)
	require.NoError(t, err)
	require.Len(t, caster.choices, 1)
	assert.Equal(t, args.Choices[0].QuestionID, caster.choices[0].QuestionID)
	assert.Equal(t, args.Choices[0].OptionIDs, caster.choices[0].OptionIDs)
}

func TestImportVotersRequiresAdminKey(t *testing.T) {
	r := newResolver(&fakeCaster{}, &fakeRoll{result: &registry.ImportResult{}}, &fakeAggregator{})

	_, err := r.ImportVoters(context.Background(), struct {
		ElectionID string
		Voters     []voterInput
	}{ElectionID: primitive.NewObjectID().Hex()})
	assert.Equal(t, errUnauthorized, err)

	result, err := r.ImportVoters(adminCtx(), struct {
		ElectionID string
		Voters     []voterInput
	}{ElectionID: primitive.NewObjectID().Hex()})
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", result.State)
}

func TestImportVotersNoConfiguredKeyDisablesAdmin(t *testing.T) {
	r := newResolver(&fakeCaster{}, &fakeRoll{result: &registry.ImportResult{}}, &fakeAggregator{})
	r.adminKey = ""

	_, err := r.ImportVoters(adminCtx(), struct {
		ElectionID string
		Voters     []voterInput
	}{ElectionID: primitive.NewObjectID().Hex()})
	assert.Equal(t, errUnauthorized, err)
}

func TestVoterRollAuthorized(t *testing.T) {
	votedAt := time.Now()
	roll := &fakeRoll{roll: []registry.RollEntry{
		{Name: "Alice", HasVoted: true, VotedAt: &votedAt},
		{Name: "Bob"},
	}}
	r := newResolver(&fakeCaster{}, roll, &fakeAggregator{})

	_, err := r.VoterRoll(context.Background(), struct{ ElectionID string }{primitive.NewObjectID().Hex()})
	assert.Equal(t, errUnauthorized, err)

	entries, err := r.VoterRoll(adminCtx(), struct{ ElectionID string }{primitive.NewObjectID().Hex()})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Alice", entries[0].Name())
	assert.True(t, entries[0].HasVoted())
	require.NotNil(t, entries[0].VotedAt())
	assert.Nil(t, entries[1].VotedAt())
}

func TestStatsQuery(t *testing.T) {
	electionID := primitive.NewObjectID()
	agg := &fakeAggregator{entries: []stats.Entry{
		{QuestionID: "q", OptionID: "a", Count: 2},
	}}
	r := newResolver(&fakeCaster{}, &fakeRoll{}, agg)

	update, err := r.Stats(context.Background(), struct{ ElectionID string }{electionID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, electionID.Hex(), update.ElectionID())
	require.Len(t, update.Stats(), 1)
	assert.Equal(t, int32(2), update.Stats()[0].Count)
}
