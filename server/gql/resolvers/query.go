package resolvers

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/scrutin/api.scrutin.app/mongo"
	"github.com/scrutin/api.scrutin.app/redis"
	"github.com/scrutin/api.scrutin.app/registry"
	"github.com/scrutin/api.scrutin.app/stats"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const electionCacheTTL = time.Minute * 5

// Election serves the public ballot view by slug. Draft elections are
// indistinguishable from missing ones on purpose.
func (*RootResolver) Election(ctx context.Context, args struct{ Slug string }) (*electionResolver, error) {
	election, err := fetchElectionBySlug(args.Slug)
	if err != nil {
		return nil, err
	}
	if election == nil || election.Status == mongo.ElectionDraft {
		return nil, nil
	}
	return &electionResolver{election}, nil
}

// Stats returns the current tally. Public by design: results are anonymous
// counts, the election page renders them live.
func (r *RootResolver) Stats(ctx context.Context, args struct{ ElectionID string }) (*updateResolver, error) {
	id, err := primitive.ObjectIDFromHex(args.ElectionID)
	if err != nil {
		return nil, errMissingElection
	}
	entries, err := r.tallies.Compute(ctx, id)
	if err != nil {
		log.Errorf("stats, err=%v", err)
		return nil, errInternalServer
	}
	return &updateResolver{stats.Update{
		ElectionID: args.ElectionID,
		Stats:      entries,
		ComputedAt: time.Now(),
	}}, nil
}

// VoterRoll lists participation for the admin view: decrypted names and
// voted flags, never emails or tokens.
func (r *RootResolver) VoterRoll(ctx context.Context, args struct{ ElectionID string }) ([]rollResolver, error) {
	if !r.authorized(ctx) {
		return nil, errUnauthorized
	}
	id, err := primitive.ObjectIDFromHex(args.ElectionID)
	if err != nil {
		return nil, errMissingElection
	}
	roll, err := r.voters.Roll(ctx, id)
	if err != nil {
		log.Errorf("roll, err=%v", err)
		return nil, errInternalServer
	}
	resolvers := make([]rollResolver, len(roll))
	for i, entry := range roll {
		resolvers[i] = rollResolver{entry}
	}
	return resolvers, nil
}

// fetchElectionBySlug reads through the redis cache. Lifecycle transitions
// drop the key, so a cached status is never more than one transition stale.
func fetchElectionBySlug(slug string) (*mongo.Election, error) {
	redisKey := fmt.Sprintf("cached:elections:%s", slug)

	val, err := redis.Client.Get(redis.Ctx, redisKey).Result()
	if err != nil && err != redis.ErrNil {
		log.Errorf("redis, err=%v", err)
		return nil, errInternalServer
	}

	if val == "dead" {
		return nil, nil
	}

	election := &mongo.Election{}
	if err == redis.ErrNil {
		result := mongo.Database.Collection("elections").FindOne(mongo.Ctx, bson.M{
			"slug": slug,
		})
		err = result.Err()
		if err == mongo.ErrNoDocuments {
			if err = redis.Client.Set(redis.Ctx, redisKey, "dead", electionCacheTTL).Err(); err != nil {
				log.Errorf("redis, err=%v", err)
			}
			return nil, nil
		}
		if err == nil {
			err = result.Decode(election)
		}
		if err != nil {
			log.Errorf("mongo, err=%v", err)
			return nil, errInternalServer
		}

		electionStr, err := json.MarshalToString(election)
		if err == nil {
			if err = redis.Client.Set(redis.Ctx, redisKey, electionStr, electionCacheTTL).Err(); err != nil {
				log.Errorf("redis, err=%v", err)
			}
		} else {
			log.Errorf("redis, err=%v", err)
		}
	} else if err = json.UnmarshalFromString(val, election); err != nil {
		log.Errorf("json, err=%v", err)
		return nil, errInternalServer
	}

	return election, nil
}

// InvalidateElectionCache drops the cached copy of an election's public
// view. Called by the lifecycle machine after a status transition.
func InvalidateElectionCache(slug string) {
	if err := redis.Client.Del(redis.Ctx, fmt.Sprintf("cached:elections:%s", slug)).Err(); err != nil {
		log.Errorf("redis, err=%v", err)
	}
}

type electionResolver struct {
	election *mongo.Election
}

func (r *electionResolver) ID() string {
	return r.election.ID.Hex()
}

func (r *electionResolver) Slug() string {
	return r.election.Slug
}

func (r *electionResolver) Title() string {
	return r.election.Title
}

func (r *electionResolver) Description() string {
	return r.election.Description
}

func (r *electionResolver) StartAt() string {
	return r.election.StartAt.Format(time.RFC3339)
}

func (r *electionResolver) EndAt() string {
	return r.election.EndAt.Format(time.RFC3339)
}

func (r *electionResolver) Status() string {
	return r.election.Status
}

func (r *electionResolver) Questions() []*questionResolver {
	questions := make([]*questionResolver, len(r.election.Questions))
	for i := range r.election.Questions {
		questions[i] = &questionResolver{&r.election.Questions[i]}
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].question.Order < questions[j].question.Order
	})
	return questions
}

type questionResolver struct {
	question *mongo.Question
}

func (r *questionResolver) ID() string {
	return r.question.ID.Hex()
}

func (r *questionResolver) Title() string {
	return r.question.Title
}

func (r *questionResolver) Type() string {
	return r.question.Type
}

func (r *questionResolver) MaxSelections() int32 {
	return r.question.MaxSelections
}

func (r *questionResolver) Order() int32 {
	return r.question.Order
}

func (r *questionResolver) Options() []*optionResolver {
	options := make([]*optionResolver, len(r.question.Options))
	for i := range r.question.Options {
		options[i] = &optionResolver{&r.question.Options[i]}
	}
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].option.Order < options[j].option.Order
	})
	return options
}

type optionResolver struct {
	option *mongo.Option
}

func (r *optionResolver) ID() string {
	return r.option.ID.Hex()
}

func (r *optionResolver) Text() string {
	return r.option.Text
}

func (r *optionResolver) Order() int32 {
	return r.option.Order
}

type updateResolver struct {
	update stats.Update
}

func (r *updateResolver) ElectionID() string {
	return r.update.ElectionID
}

func (r *updateResolver) Stats() []stats.Entry {
	return r.update.Stats
}

func (r *updateResolver) ComputedAt() string {
	return r.update.ComputedAt.Format(time.RFC3339)
}

type rollResolver struct {
	entry registry.RollEntry
}

func (r rollResolver) Name() string {
	return r.entry.Name
}

func (r rollResolver) HasVoted() bool {
	return r.entry.HasVoted
}

func (r rollResolver) VotedAt() *string {
	if r.entry.VotedAt == nil {
		return nil
	}
	s := r.entry.VotedAt.Format(time.RFC3339)
	return &s
}
