package resolvers

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
	"github.com/scrutin/api.scrutin.app/ballot"
	"github.com/scrutin/api.scrutin.app/configure"
	"github.com/scrutin/api.scrutin.app/redis"
	"github.com/scrutin/api.scrutin.app/registry"
	"github.com/scrutin/api.scrutin.app/stats"
	"github.com/scrutin/api.scrutin.app/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	errInternalServer  = fmt.Errorf("internal server error")
	errMissingElection = fmt.Errorf("we don't know what election that is")
	errUnauthorized    = fmt.Errorf("unauthorized")
)

// Caster runs the ballot casting protocol.
type Caster interface {
	Cast(ctx context.Context, rawToken string, electionID primitive.ObjectID, choices []ballot.Choice) error
}

// Roll manages the voter registry.
type Roll interface {
	Import(ctx context.Context, electionID primitive.ObjectID, entries []registry.Entry) (*registry.ImportResult, error)
	Roll(ctx context.Context, electionID primitive.ObjectID) ([]registry.RollEntry, error)
}

// Aggregator computes live tallies.
type Aggregator interface {
	Compute(ctx context.Context, electionID primitive.ObjectID) ([]stats.Entry, error)
}

type RootResolver struct {
	mtx    *sync.Mutex
	subs   map[string][]chan stats.Update
	pubsub *redis.PubSub

	ballots  Caster
	voters   Roll
	tallies  Aggregator
	adminKey string
}

func New() *RootResolver {
	tallies := stats.NewService(stats.MongoStore{}, stats.RedisPublisher{})

	rr := &RootResolver{
		mtx:      &sync.Mutex{},
		subs:     make(map[string][]chan stats.Update),
		pubsub:   redis.Client.Subscribe(redis.Ctx),
		ballots:  ballot.NewService(ballot.MongoStore{}, tallies),
		voters:   registry.NewService(registry.MongoStore{}, configure.Config.GetString("frontend_url")),
		tallies:  tallies,
		adminKey: configure.Config.GetString("admin_key"),
	}

	go func() {
		ch := rr.pubsub.Channel()
		for {
			msg := <-ch
			update := stats.Update{}
			err := json.UnmarshalFromString(msg.Payload, &update)
			if err != nil {
				log.Errorf("redis, err=%v", err)
				continue
			}
			wg := sync.WaitGroup{}
			rr.mtx.Lock()
			if v, ok := rr.subs[msg.Channel]; ok {
				wg.Add(len(v))
				for _, c := range v {
					go func(c chan stats.Update) {
						defer wg.Done()
						defer recover()
						c <- update
					}(c)
				}
			}
			wg.Wait()
			rr.mtx.Unlock()
		}
	}()

	return rr
}

func filterSlice(s []chan stats.Update, r chan stats.Update) []chan stats.Update {
	for i, v := range s {
		if v == r {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func (r *RootResolver) subscribe(event string, ch chan stats.Update) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if v, ok := r.subs[event]; ok {
		r.subs[event] = append(v, ch)
	} else {
		r.subs[event] = []chan stats.Update{ch}
		return r.pubsub.Subscribe(redis.Ctx, event)
	}
	return nil
}

func (r *RootResolver) unsubscribe(event string, ch chan stats.Update) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	remaining := filterSlice(r.subs[event], ch)
	if len(remaining) == 0 {
		delete(r.subs, event)
		return r.pubsub.Unsubscribe(redis.Ctx, event)
	}
	r.subs[event] = remaining
	return nil
}

// authorized checks the admin key the http layer copied into the context.
// An empty configured key disables admin operations outright.
func (r *RootResolver) authorized(ctx context.Context) bool {
	if r.adminKey == "" {
		return false
	}
	supplied, _ := ctx.Value(utils.Key("admin_key")).(string)
	return supplied == r.adminKey
}
