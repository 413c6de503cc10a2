// Package ballot implements the anonymous ballot casting protocol: validate
// a bearer token, consume it exactly once, validate the choices against the
// election's question schema and record votes with no voter reference, all
// inside a single transactional unit.
package ballot

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/scrutin/api.scrutin.app/crypto"
	"github.com/scrutin/api.scrutin.app/mongo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Choice is one answered question of an incoming ballot.
type Choice struct {
	QuestionID string
	OptionIDs  []string
}

type Service struct {
	store Store
	bcast Broadcaster
	now   func() time.Time
}

func NewService(store Store, bcast Broadcaster) *Service {
	return &Service{
		store: store,
		bcast: bcast,
		now:   time.Now,
	}
}

// Cast runs the casting protocol for one submission.
//
// Ordering matters: the voter lookup and the fresh status read happen in the
// same unit as the reservation and the row inserts, so a lifecycle tick that
// ends the election concurrently can never let a cast slip through on a stale
// status, and a validation failure after the reservation rolls the flip back
// so a malformed ballot never burns the credential.
func (s *Service) Cast(ctx context.Context, rawToken string, electionID primitive.ObjectID, choices []Choice) error {
	tokenHash := crypto.HashToken(rawToken)

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		voter, err := tx.Voter(ctx, tokenHash, electionID)
		if err != nil {
			return err
		}
		if voter == nil {
			return ErrInvalidToken
		}
		if voter.HasVoted {
			return ErrAlreadyVoted
		}

		election, err := tx.Election(ctx, electionID)
		if err != nil {
			return err
		}
		if election == nil {
			return ErrInvalidToken
		}
		if election.Status != mongo.ElectionActive {
			return &NotActiveError{Status: election.Status}
		}

		won, err := tx.Reserve(ctx, voter.ID, s.now())
		if err != nil {
			return err
		}
		if !won {
			return ErrAlreadyVoted
		}

		rows, err := buildRows(election, choices, s.now())
		if err != nil {
			return err
		}
		return tx.InsertVotes(ctx, rows)
	})
	if err != nil {
		return err
	}

	// Fire and forget: the vote is committed, a broken tally push must not
	// change the outcome for the voter.
	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.bcast.Broadcast(bctx, electionID); err != nil {
			log.Errorf("stats broadcast, err=%v", err)
		}
	}()

	return nil
}

// buildRows validates the choices against the election's question schema and
// produces the anonymized rows. Every question must be answered, every option
// must belong to its question, no option may repeat within a question, and
// cardinality follows the question type.
func buildRows(election *mongo.Election, choices []Choice, at time.Time) ([]mongo.Vote, error) {
	questions := make(map[string]*mongo.Question, len(election.Questions))
	for i := range election.Questions {
		questions[election.Questions[i].ID.Hex()] = &election.Questions[i]
	}

	answered := make(map[string]bool, len(choices))
	rows := make([]mongo.Vote, 0, len(choices))

	for _, choice := range choices {
		question, ok := questions[choice.QuestionID]
		if !ok || answered[choice.QuestionID] {
			return nil, ErrInvalidChoice
		}
		answered[choice.QuestionID] = true

		if len(choice.OptionIDs) == 0 {
			return nil, ErrIncompleteBallot
		}
		switch question.Type {
		case mongo.QuestionSingleChoice:
			if len(choice.OptionIDs) != 1 {
				return nil, ErrInvalidChoice
			}
		case mongo.QuestionMultipleChoice:
			max := question.MaxSelections
			if max < 1 {
				max = 1
			}
			if int32(len(choice.OptionIDs)) > max {
				return nil, ErrInvalidChoice
			}
		default:
			return nil, ErrInvalidChoice
		}

		options := make(map[string]bool, len(question.Options))
		for _, option := range question.Options {
			options[option.ID.Hex()] = true
		}

		seen := make(map[string]bool, len(choice.OptionIDs))
		for _, optionID := range choice.OptionIDs {
			if !options[optionID] || seen[optionID] {
				return nil, ErrInvalidChoice
			}
			seen[optionID] = true

			oid, err := primitive.ObjectIDFromHex(optionID)
			if err != nil {
				return nil, ErrInvalidChoice
			}
			rows = append(rows, mongo.Vote{
				ElectionID: election.ID,
				QuestionID: question.ID,
				OptionID:   oid,
				CreatedAt:  at,
			})
		}
	}

	if len(answered) != len(election.Questions) {
		return nil, ErrIncompleteBallot
	}
	return rows, nil
}
