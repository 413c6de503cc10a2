package resolvers

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/scrutin/api.scrutin.app/stats"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Watch streams live tally updates for one election. The first message is a
// snapshot of the committed state; after that, every committed cast pushes a
// recomputed tally through redis pub/sub.
func (r *RootResolver) Watch(ctx context.Context, args struct{ ElectionID string }) (<-chan *updateResolver, error) {
	id, err := primitive.ObjectIDFromHex(args.ElectionID)
	if err != nil {
		return nil, errMissingElection
	}

	entries, err := r.tallies.Compute(ctx, id)
	if err != nil {
		log.Errorf("stats, err=%v", err)
		return nil, errInternalServer
	}

	event := stats.Channel(args.ElectionID)
	updates := make(chan stats.Update, 100)
	if err := r.subscribe(event, updates); err != nil {
		log.Errorf("redis, err=%v", err)
		return nil, errInternalServer
	}

	out := make(chan *updateResolver, 1)
	out <- &updateResolver{stats.Update{
		ElectionID: args.ElectionID,
		Stats:      entries,
		ComputedAt: time.Now(),
	}}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				if err := r.unsubscribe(event, updates); err != nil {
					log.Errorf("redis, err=%v", err)
				}
				return
			case update := <-updates:
				out <- &updateResolver{update}
			}
		}
	}()

	return out, nil
}
