package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scrutin/api.scrutin.app/mongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memStore struct {
	mu        sync.Mutex
	elections []*mongo.Election
}

func (s *memStore) Due(ctx context.Context, now time.Time) ([]mongo.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []mongo.Election
	for _, e := range s.elections {
		draftDue := e.Status == mongo.ElectionDraft && !e.StartAt.After(now)
		activeDue := e.Status == mongo.ElectionActive && !e.EndAt.After(now)
		if draftDue || activeDue {
			due = append(due, *e)
		}
	}
	return due, nil
}

func (s *memStore) Transition(ctx context.Context, electionID primitive.ObjectID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.elections {
		if e.ID == electionID && e.Status == from {
			e.Status = to
			return true, nil
		}
	}
	return false, nil
}

func newElection(status string, start, end time.Time) *mongo.Election {
	return &mongo.Election{
		ID:      primitive.NewObjectID(),
		Slug:    "test-election",
		Status:  status,
		StartAt: start,
		EndAt:   end,
	}
}

func TestTickActivatesDraft(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newElection(mongo.ElectionDraft, base.Add(time.Minute), base.Add(time.Hour))
	store := &memStore{elections: []*mongo.Election{e}}
	m := NewMachine(store, nil)

	require.NoError(t, m.Tick(context.Background(), base))
	assert.Equal(t, mongo.ElectionDraft, e.Status, "not due yet")

	require.NoError(t, m.Tick(context.Background(), base.Add(time.Minute)))
	assert.Equal(t, mongo.ElectionActive, e.Status)
}

func TestTickEndsActive(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newElection(mongo.ElectionActive, base.Add(-time.Hour), base.Add(time.Minute))
	store := &memStore{elections: []*mongo.Election{e}}
	m := NewMachine(store, nil)

	require.NoError(t, m.Tick(context.Background(), base))
	assert.Equal(t, mongo.ElectionActive, e.Status)

	require.NoError(t, m.Tick(context.Background(), base.Add(2*time.Minute)))
	assert.Equal(t, mongo.ElectionEnded, e.Status)
}

func TestTickOverdueDraftPassesThroughActive(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newElection(mongo.ElectionDraft, base.Add(-2*time.Hour), base.Add(-time.Hour))
	store := &memStore{elections: []*mongo.Election{e}}

	var seen []string
	m := NewMachine(store, func(election mongo.Election) {
		seen = append(seen, election.Status)
	})

	require.NoError(t, m.Tick(context.Background(), base))
	assert.Equal(t, mongo.ElectionEnded, e.Status)
	assert.Equal(t, []string{mongo.ElectionActive, mongo.ElectionEnded}, seen)
}

func TestTickMonotonic(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newElection(mongo.ElectionDraft, base, base.Add(time.Hour))
	store := &memStore{elections: []*mongo.Election{e}}
	m := NewMachine(store, nil)

	// non-decreasing now: status never regresses
	times := []time.Time{
		base.Add(-time.Minute),
		base,
		base.Add(time.Minute),
		base.Add(time.Minute), // repeated tick
		base.Add(time.Hour),
		base.Add(2 * time.Hour),
		base.Add(2 * time.Hour),
	}
	rank := map[string]int{
		mongo.ElectionDraft:  0,
		mongo.ElectionActive: 1,
		mongo.ElectionEnded:  2,
	}
	last := rank[e.Status]
	for _, now := range times {
		require.NoError(t, m.Tick(context.Background(), now))
		assert.GreaterOrEqual(t, rank[e.Status], last, "status regressed at %v", now)
		last = rank[e.Status]
	}
	assert.Equal(t, mongo.ElectionEnded, e.Status)
}

func TestTickNeverTouchesEndedOrArchived(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := newElection(mongo.ElectionEnded, base.Add(-2*time.Hour), base.Add(-time.Hour))
	archived := newElection(mongo.ElectionArchived, base.Add(-2*time.Hour), base.Add(-time.Hour))
	store := &memStore{elections: []*mongo.Election{ended, archived}}
	m := NewMachine(store, nil)

	require.NoError(t, m.Tick(context.Background(), base))
	assert.Equal(t, mongo.ElectionEnded, ended.Status)
	assert.Equal(t, mongo.ElectionArchived, archived.Status)
}

func TestTickLostRaceIsQuiet(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := newElection(mongo.ElectionDraft, base, base.Add(time.Hour))
	store := &memStore{elections: []*mongo.Election{e}}

	calls := 0
	m := NewMachine(store, func(mongo.Election) { calls++ })

	// a competing tick applies the transition between Due and Transition
	_, err := store.Transition(context.Background(), e.ID, mongo.ElectionDraft, mongo.ElectionActive)
	require.NoError(t, err)

	due := []mongo.Election{*e}
	due[0].Status = mongo.ElectionDraft // stale read
	for _, election := range due {
		require.NoError(t, m.apply(context.Background(), &election, mongo.ElectionDraft, mongo.ElectionActive))
	}
	assert.Equal(t, mongo.ElectionActive, e.Status)
	assert.Zero(t, calls, "lost compare-and-set must not fire onChange")
}

func TestSchedulerRunsAndStops(t *testing.T) {
	base := time.Now()
	e := newElection(mongo.ElectionDraft, base.Add(-time.Minute), base.Add(time.Hour))
	store := &memStore{elections: []*mongo.Election{e}}

	changed := make(chan string, 4)
	m := NewMachine(store, func(election mongo.Election) {
		changed <- election.Status
	})

	stop := m.StartScheduler(10 * time.Millisecond)
	defer stop()

	select {
	case status := <-changed:
		assert.Equal(t, mongo.ElectionActive, status)
	case <-time.After(time.Second):
		t.Fatal("scheduler never ticked")
	}
}
