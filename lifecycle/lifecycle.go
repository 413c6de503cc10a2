// Package lifecycle owns election status and its time-driven transitions.
// Status only ever moves forward: draft -> active -> ended. Archiving is an
// explicit admin action on the data, never something a tick does.
package lifecycle

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/scrutin/api.scrutin.app/mongo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the persistence surface of the machine. Transition is a
// compare-and-set on the status field: it only applies when the current
// status still equals from, which is what keeps transitions monotonic even
// when ticks race each other or race a cast.
type Store interface {
	Due(ctx context.Context, now time.Time) ([]mongo.Election, error)
	Transition(ctx context.Context, electionID primitive.ObjectID, from, to string) (bool, error)
}

type Machine struct {
	store Store
	// onChange runs after a transition is applied, outside any lock.
	// Used to drop cached copies of the election.
	onChange func(election mongo.Election)
}

func NewMachine(store Store, onChange func(election mongo.Election)) *Machine {
	return &Machine{store: store, onChange: onChange}
}

// Tick evaluates every due transition against the supplied time. It takes
// now as an argument so tests drive the clock; the scheduler passes
// wall-clock time. A draft whose window already closed passes through
// active on its way to ended, never skips it.
func (m *Machine) Tick(ctx context.Context, now time.Time) error {
	due, err := m.store.Due(ctx, now)
	if err != nil {
		return err
	}

	for _, election := range due {
		if election.Status == mongo.ElectionDraft && !election.StartAt.After(now) {
			if err := m.apply(ctx, &election, mongo.ElectionDraft, mongo.ElectionActive); err != nil {
				return err
			}
		}
		if election.Status == mongo.ElectionActive && !election.EndAt.After(now) {
			if err := m.apply(ctx, &election, mongo.ElectionActive, mongo.ElectionEnded); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Machine) apply(ctx context.Context, election *mongo.Election, from, to string) error {
	applied, err := m.store.Transition(ctx, election.ID, from, to)
	if err != nil {
		return err
	}
	if !applied {
		// someone else moved it first; the next Due read sees the truth
		return nil
	}
	election.Status = to
	log.Infof("lifecycle, election=%s slug=%s %s->%s", election.ID.Hex(), election.Slug, from, to)
	if m.onChange != nil {
		m.onChange(*election)
	}
	return nil
}

// StartScheduler ticks the machine on an interval until the returned stop
// function is called. One tick runs immediately so restarts don't leave
// overdue elections in the wrong state for a full interval.
func (m *Machine) StartScheduler(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	run := func(now time.Time) {
		if err := m.Tick(context.Background(), now); err != nil {
			log.Errorf("lifecycle, err=%v", err)
		}
	}

	go func() {
		run(time.Now())
		for {
			select {
			case <-done:
				ticker.Stop()
				return
			case now := <-ticker.C:
				run(now)
			}
		}
	}()

	return func() { close(done) }
}
