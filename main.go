package main

import (
	"encoding/hex"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/scrutin/api.scrutin.app/configure"
	"github.com/scrutin/api.scrutin.app/crypto"
	"github.com/scrutin/api.scrutin.app/lifecycle"
	"github.com/scrutin/api.scrutin.app/mongo"
	"github.com/scrutin/api.scrutin.app/redis"
	"github.com/scrutin/api.scrutin.app/server"
	"github.com/scrutin/api.scrutin.app/server/gql/resolvers"
)

func main() {
	configure.Init()

	log.Infoln("Application Starting...")

	configCode := configure.Config.GetInt("exit_code")
	if configCode > 125 || configCode < 0 {
		log.Warnf("Invalid exit code specified in config (%v), using 0 as new exit code.", configCode)
		configCode = 0
	}

	if keyHex := configure.Config.GetString("encryption_key"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			log.Fatalf("encryption_key is not valid hex, err=%v", err)
		}
		if err := crypto.SetKey(key); err != nil {
			log.Fatalf("encryption_key, err=%v", err)
		}
	}

	mongo.Setup()
	redis.Setup()

	machine := lifecycle.NewMachine(lifecycle.MongoStore{}, func(election mongo.Election) {
		resolvers.InvalidateElectionCache(election.Slug)
	})
	tickInterval := configure.Config.GetInt("tick_interval")
	if tickInterval < 1 {
		tickInterval = 60
	}
	stopScheduler := machine.StartScheduler(time.Duration(tickInterval) * time.Second)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	s := server.NewServer()

	go func() {
		sig := <-c
		log.Infof("sig=%v, gracefully shutting down...", sig)
		start := time.Now().UnixNano()

		wg := sync.WaitGroup{}
		wg.Add(2)

		go func() {
			defer wg.Done()
			stopScheduler()
		}()

		go func() {
			defer wg.Done()
			if err := s.Shutdown(); err != nil {
				log.Errorf("server, shutdown=%v", err)
			}
		}()

		wg.Wait()

		log.Infof("Shutdown took, %.2fms", float64(time.Now().UnixNano()-start)/10e5)
		os.Exit(configCode)
	}()

	log.Infoln("Application Started.")

	select {}
}
