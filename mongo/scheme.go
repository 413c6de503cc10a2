package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Election status values. Transitions only ever move forward:
// draft -> active -> ended -> archived.
const (
	ElectionDraft    = "draft"
	ElectionActive   = "active"
	ElectionEnded    = "ended"
	ElectionArchived = "archived"
)

// Question types.
const (
	QuestionSingleChoice   = "single_choice"
	QuestionMultipleChoice = "multiple_choice"
)

// Election is immutable after creation except for Status, which is owned
// by the lifecycle machine. Questions and options are embedded since they
// never change once the election exists.
type Election struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Slug        string             `json:"slug" bson:"slug"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	StartAt     time.Time          `json:"start_at" bson:"start_at"`
	EndAt       time.Time          `json:"end_at" bson:"end_at"`
	Status      string             `json:"status" bson:"status"`
	CreatedBy   string             `json:"created_by" bson:"created_by"`
	Questions   []Question         `json:"questions" bson:"questions"`
}

type Question struct {
	ID            primitive.ObjectID `json:"id" bson:"id"`
	Title         string             `json:"title" bson:"title"`
	Type          string             `json:"type" bson:"type"`
	MaxSelections int32              `json:"max_selections" bson:"max_selections"`
	Order         int32              `json:"order" bson:"order"`
	Options       []Option           `json:"options" bson:"options"`
}

type Option struct {
	ID    primitive.ObjectID `json:"id" bson:"id"`
	Text  string             `json:"text" bson:"text"`
	Order int32              `json:"order" bson:"order"`
}

// Voter holds no plaintext identity. The raw token and email only ever
// exist in memory; the name is reversible for the admin roll view.
type Voter struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ElectionID    primitive.ObjectID `json:"election_id" bson:"election_id"`
	EmailHash     string             `json:"-" bson:"email_hash"`
	TokenHash     string             `json:"-" bson:"token_hash"`
	NameEncrypted string             `json:"-" bson:"name_encrypted"`
	HasVoted      bool               `json:"has_voted" bson:"has_voted"`
	VotedAt       *time.Time         `json:"voted_at" bson:"voted_at"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
}

// Vote carries no voter reference. Once a row exists there is no stored
// path from it back to the voter that produced it.
type Vote struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ElectionID primitive.ObjectID `json:"election_id" bson:"election_id"`
	QuestionID primitive.ObjectID `json:"question_id" bson:"question_id"`
	OptionID   primitive.ObjectID `json:"option_id" bson:"option_id"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}
