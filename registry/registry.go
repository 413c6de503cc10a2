// Package registry manages the voter roll: bulk invitation import with
// token minting, and the admin-facing participation view. Raw emails and
// tokens pass through here in memory only; what lands in storage is hashes
// and an encrypted name.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/scrutin/api.scrutin.app/crypto"
	"github.com/scrutin/api.scrutin.app/mongo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrElectionNotFound = errors.New("election not found")
	// ErrDuplicate marks a unique key collision on insert: an email invited
	// twice, or the astronomically unlikely token hash collision.
	ErrDuplicate = errors.New("duplicate voter")
)

type Store interface {
	Election(ctx context.Context, electionID primitive.ObjectID) (*mongo.Election, error)
	InsertVoter(ctx context.Context, voter *mongo.Voter) error
	Voters(ctx context.Context, electionID primitive.ObjectID) ([]mongo.Voter, error)
}

// Entry is one row of an invitation batch.
type Entry struct {
	Name  string
	Email string
}

// Accepted is returned to the admin exactly once; the link embeds the raw
// token and is never reconstructable afterwards.
type Accepted struct {
	Email string
	Link  string
}

type Rejected struct {
	Email  string
	Reason string
}

type ImportResult struct {
	Accepted []Accepted
	Rejected []Rejected
}

// RollEntry is the admin participation view. No email, no token.
type RollEntry struct {
	Name     string
	HasVoted bool
	VotedAt  *time.Time
}

type Service struct {
	store       Store
	frontendURL string
	now         func() time.Time
}

func NewService(store Store, frontendURL string) *Service {
	return &Service{
		store:       store,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

// Import mints a credential per entry and stores the voter record. A failed
// entry rejects that entry only; the rest of the batch keeps going.
func (s *Service) Import(ctx context.Context, electionID primitive.ObjectID, entries []Entry) (*ImportResult, error) {
	election, err := s.store.Election(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if election == nil {
		return nil, ErrElectionNotFound
	}

	result := &ImportResult{}
	for _, entry := range entries {
		if strings.TrimSpace(entry.Email) == "" {
			result.Rejected = append(result.Rejected, Rejected{Email: entry.Email, Reason: "missing email"})
			continue
		}

		raw, tokenHash, err := crypto.MintToken()
		if err != nil {
			log.Errorf("mint, err=%v", err)
			result.Rejected = append(result.Rejected, Rejected{Email: entry.Email, Reason: "failed"})
			continue
		}

		voter := &mongo.Voter{
			ElectionID: electionID,
			EmailHash:  crypto.HashEmail(entry.Email),
			TokenHash:  tokenHash,
			CreatedAt:  s.now(),
		}
		if entry.Name != "" {
			encrypted, err := crypto.Encrypt(entry.Name)
			if err != nil {
				log.Errorf("encrypt, err=%v", err)
				result.Rejected = append(result.Rejected, Rejected{Email: entry.Email, Reason: "failed"})
				continue
			}
			voter.NameEncrypted = encrypted
		}

		if err := s.store.InsertVoter(ctx, voter); err != nil {
			if errors.Is(err, ErrDuplicate) {
				result.Rejected = append(result.Rejected, Rejected{Email: entry.Email, Reason: "duplicate"})
			} else {
				log.Errorf("voter insert, err=%v", err)
				result.Rejected = append(result.Rejected, Rejected{Email: entry.Email, Reason: "failed"})
			}
			continue
		}

		link := fmt.Sprintf("%s/vote/%s?token=%s", s.frontendURL, election.Slug, raw)
		result.Accepted = append(result.Accepted, Accepted{Email: entry.Email, Link: link})

		// delivery stub, a mail queue would hang off this
		log.Infof("email send, to=%s link=%s", entry.Email, link)
	}
	return result, nil
}

// Roll lists participation with decrypted names. A name that cannot be
// decrypted shows as unavailable rather than failing the whole view or
// leaking a wrong value.
func (s *Service) Roll(ctx context.Context, electionID primitive.ObjectID) ([]RollEntry, error) {
	voters, err := s.store.Voters(ctx, electionID)
	if err != nil {
		return nil, err
	}

	roll := make([]RollEntry, 0, len(voters))
	for _, voter := range voters {
		name := ""
		if voter.NameEncrypted != "" {
			name, err = crypto.Decrypt(voter.NameEncrypted)
			if err != nil {
				log.Errorf("decrypt, voter=%s err=%v", voter.ID.Hex(), err)
				name = "unavailable"
			}
		}
		roll = append(roll, RollEntry{
			Name:     name,
			HasVoted: voter.HasVoted,
			VotedAt:  voter.VotedAt,
		})
	}
	return roll, nil
}
