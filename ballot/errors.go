package ballot

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken covers an unknown token and a token minted for a
	// different election; the two are indistinguishable on purpose.
	ErrInvalidToken = errors.New("invalid token")
	// ErrAlreadyVoted is final. A losing concurrent attempt gets this,
	// never a retry hint.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrElectionNotActive rejects casts outside the active window.
	ErrElectionNotActive = errors.New("election not active")
	// ErrIncompleteBallot rejects ballots that leave questions unanswered.
	ErrIncompleteBallot = errors.New("ballot does not answer every question")
	// ErrInvalidChoice rejects foreign, duplicate or over-cardinality options.
	ErrInvalidChoice = errors.New("invalid choice")
)

// NotActiveError carries which side of the window the election is on so the
// client can say "not started yet" vs "closed". errors.Is matches it against
// ErrElectionNotActive.
type NotActiveError struct {
	Status string
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("election not active, status=%s", e.Status)
}

func (e *NotActiveError) Is(target error) bool {
	return target == ErrElectionNotActive
}
