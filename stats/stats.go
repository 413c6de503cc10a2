// Package stats aggregates anonymized vote rows into per-option counts and
// pushes them to live subscribers. It is a pure function of committed state;
// no cache sits between a cast and the next computation.
package stats

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one (question, option) count.
type Entry struct {
	QuestionID string `json:"question_id"`
	OptionID   string `json:"option_id"`
	Count      int32  `json:"count"`
}

// Update is the payload published to watchers of an election.
type Update struct {
	ElectionID string    `json:"election_id"`
	Stats      []Entry   `json:"stats"`
	ComputedAt time.Time `json:"computed_at"`
}

type Store interface {
	VoteCounts(ctx context.Context, electionID primitive.ObjectID) ([]Entry, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload string) error
}

// Channel names the pub/sub topic for one election's live tally.
func Channel(electionID string) string {
	return fmt.Sprintf("events:election:stats:%s", electionID)
}

type Service struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

func NewService(store Store, pub Publisher) *Service {
	return &Service{store: store, pub: pub, now: time.Now}
}

// Compute returns the current tally grouped by (question, option).
func (s *Service) Compute(ctx context.Context, electionID primitive.ObjectID) ([]Entry, error) {
	return s.store.VoteCounts(ctx, electionID)
}

// Broadcast recomputes the tally and publishes it to the election's channel.
func (s *Service) Broadcast(ctx context.Context, electionID primitive.ObjectID) error {
	entries, err := s.Compute(ctx, electionID)
	if err != nil {
		return err
	}
	payload, err := json.MarshalToString(Update{
		ElectionID: electionID.Hex(),
		Stats:      entries,
		ComputedAt: s.now(),
	})
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, Channel(electionID.Hex()), payload)
}
