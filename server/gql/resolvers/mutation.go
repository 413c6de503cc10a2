package resolvers

import (
	"context"
	"errors"
	"regexp"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/scrutin/api.scrutin.app/ballot"
	"github.com/scrutin/api.scrutin.app/mongo"
	"github.com/scrutin/api.scrutin.app/registry"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type electionInput struct {
	Slug        string
	Title       string
	Description *string
	StartAt     string
	EndAt       string
	Questions   []questionInput
}

type questionInput struct {
	Title         string
	Type          string
	MaxSelections *int32
	Order         *int32
	Options       []optionInput
}

type optionInput struct {
	Text  string
	Order *int32
}

type voterInput struct {
	Name  *string
	Email string
}

type choiceInput struct {
	QuestionID string
	OptionIDs  []string
}

type electionResult struct {
	State    string
	Election *electionResolver
}

// CreateElection stores a new election in draft with its questions and
// options embedded. Everything except status is frozen from here on.
func (r *RootResolver) CreateElection(ctx context.Context, args struct {
	Election electionInput
}) (electionResult, error) {
	if !r.authorized(ctx) {
		return electionResult{}, errUnauthorized
	}

	in := args.Election
	if len(in.Slug) == 0 || len(in.Slug) > 100 || !slugPattern.MatchString(in.Slug) {
		return electionResult{"INVALID_SLUG", nil}, nil
	}
	if len(in.Title) == 0 || len(in.Title) > 255 {
		return electionResult{"INVALID_TITLE", nil}, nil
	}

	startAt, err := time.Parse(time.RFC3339, in.StartAt)
	if err != nil {
		return electionResult{"INVALID_WINDOW", nil}, nil
	}
	endAt, err := time.Parse(time.RFC3339, in.EndAt)
	if err != nil || !endAt.After(startAt) {
		return electionResult{"INVALID_WINDOW", nil}, nil
	}

	if len(in.Questions) == 0 {
		return electionResult{"INVALID_QUESTIONS", nil}, nil
	}
	questions := make([]mongo.Question, len(in.Questions))
	for i, q := range in.Questions {
		if len(q.Title) == 0 || len(q.Options) < 2 {
			return electionResult{"INVALID_QUESTIONS", nil}, nil
		}
		if q.Type != mongo.QuestionSingleChoice && q.Type != mongo.QuestionMultipleChoice {
			return electionResult{"INVALID_QUESTIONS", nil}, nil
		}

		maxSelections := int32(1)
		if q.Type == mongo.QuestionMultipleChoice && q.MaxSelections != nil {
			maxSelections = *q.MaxSelections
		}
		if maxSelections < 1 || maxSelections > int32(len(q.Options)) {
			return electionResult{"INVALID_QUESTIONS", nil}, nil
		}

		order := int32(i)
		if q.Order != nil {
			order = *q.Order
		}

		options := make([]mongo.Option, len(q.Options))
		for j, o := range q.Options {
			if len(o.Text) == 0 {
				return electionResult{"INVALID_QUESTIONS", nil}, nil
			}
			optionOrder := int32(j)
			if o.Order != nil {
				optionOrder = *o.Order
			}
			options[j] = mongo.Option{
				ID:    primitive.NewObjectID(),
				Text:  o.Text,
				Order: optionOrder,
			}
		}

		questions[i] = mongo.Question{
			ID:            primitive.NewObjectID(),
			Title:         q.Title,
			Type:          q.Type,
			MaxSelections: maxSelections,
			Order:         order,
			Options:       options,
		}
	}

	election := &mongo.Election{
		Slug:      in.Slug,
		Title:     in.Title,
		StartAt:   startAt,
		EndAt:     endAt,
		Status:    mongo.ElectionDraft,
		Questions: questions,
	}
	if in.Description != nil {
		election.Description = *in.Description
	}

	res, err := mongo.Database.Collection("elections").InsertOne(mongo.Ctx, election)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return electionResult{"SLUG_TAKEN", nil}, nil
		}
		log.Errorf("mongo, err=%v", err)
		return electionResult{}, errInternalServer
	}
	election.ID = res.InsertedID.(primitive.ObjectID)

	return electionResult{"SUCCESS", &electionResolver{election}}, nil
}

type importResult struct {
	State    string
	Accepted []registry.Accepted
	Rejected []registry.Rejected
}

// ImportVoters runs an invitation batch. Individual failures come back in
// rejected; only a missing election fails the batch as a whole.
func (r *RootResolver) ImportVoters(ctx context.Context, args struct {
	ElectionID string
	Voters     []voterInput
}) (importResult, error) {
	if !r.authorized(ctx) {
		return importResult{}, errUnauthorized
	}

	id, err := primitive.ObjectIDFromHex(args.ElectionID)
	if err != nil {
		return importResult{State: "ELECTION_NOT_FOUND"}, nil
	}

	entries := make([]registry.Entry, len(args.Voters))
	for i, voter := range args.Voters {
		entries[i] = registry.Entry{Email: voter.Email}
		if voter.Name != nil {
			entries[i].Name = *voter.Name
		}
	}

	result, err := r.voters.Import(ctx, id, entries)
	if err != nil {
		if errors.Is(err, registry.ErrElectionNotFound) {
			return importResult{State: "ELECTION_NOT_FOUND"}, nil
		}
		log.Errorf("import, err=%v", err)
		return importResult{}, errInternalServer
	}

	return importResult{
		State:    "SUCCESS",
		Accepted: result.Accepted,
		Rejected: result.Rejected,
	}, nil
}

// CastBallot runs the casting protocol and maps its outcome to a state the
// voting page can render. Internal failures stay generic; nothing in the
// response ties back to a voter identity.
func (r *RootResolver) CastBallot(ctx context.Context, args struct {
	Token      string
	ElectionID string
	Choices    []choiceInput
}) (string, error) {
	id, err := primitive.ObjectIDFromHex(args.ElectionID)
	if err != nil {
		return "INVALID_TOKEN", nil
	}

	choices := make([]ballot.Choice, len(args.Choices))
	for i, choice := range args.Choices {
		choices[i] = ballot.Choice{
			QuestionID: choice.QuestionID,
			OptionIDs:  choice.OptionIDs,
		}
	}

	err = r.ballots.Cast(ctx, args.Token, id, choices)
	if err == nil {
		return "SUCCESS", nil
	}

	var notActive *ballot.NotActiveError
	switch {
	case errors.Is(err, ballot.ErrInvalidToken):
		return "INVALID_TOKEN", nil
	case errors.Is(err, ballot.ErrAlreadyVoted):
		return "ALREADY_VOTED", nil
	case errors.As(err, &notActive):
		if notActive.Status == mongo.ElectionDraft {
			return "ELECTION_NOT_STARTED", nil
		}
		return "ELECTION_ENDED", nil
	case errors.Is(err, ballot.ErrIncompleteBallot):
		return "INCOMPLETE_BALLOT", nil
	case errors.Is(err, ballot.ErrInvalidChoice):
		return "INVALID_CHOICE", nil
	default:
		log.Errorf("cast, err=%v", err)
		return "", errInternalServer
	}
}
