package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/source-dews/fleettrack/app/fleet-monitor/monitor"
	"github.com/source-dews/fleettrack/app/fleet-monitor/webservice"
	"github.com/source-dews/fleettrack/business/data/feed"
	"github.com/source-dews/fleettrack/business/data/history"
	"github.com/source-dews/fleettrack/business/data/users"
	"github.com/source-dews/fleettrack/business/fleet"
	"github.com/source-dews/fleettrack/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "FLEET_MONITOR : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		Web  struct {
			Port int `conf:"default:8080"`
		}
		Feed struct {
			PublicKeyURL      string `conf:"default:https://arac.iett.gov.tr/api/task/crypto/pubkey"`
			FleetURL          string `conf:"default:https://arac.iett.gov.tr/api/task/bus-fleet/buses"`
			TaskURLTemplate   string `conf:"default:https://arac.iett.gov.tr/api/task/getCarTasks/%s"`
			PollMilliseconds  int    `conf:"default:1500"`
			KeyTimeoutSeconds int    `conf:"default:4"`
			TimeoutSeconds    int    `conf:"default:8"`
		}
		History struct {
			FilePath         string `conf:"default:vehicle_history.db"`
			RetentionSeconds int    `conf:"default:600"`
			CleanupSeconds   int    `conf:"default:300"`
		}
		NATS struct {
			URL string
		}
		UserDB struct {
			Enabled    bool   `conf:"default:false"`
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Live fleet ingestion and analysis engine"
	const prefix = "FLEET"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// =========================================================================
	// Stores and upstream client

	historyStore := history.NewStore(log, cfg.History.FilePath)

	var userStore *users.Store
	if cfg.UserDB.Enabled {
		log.Println("main: Initializing user database support")
		userDB, err := database.Open(database.Config{
			User:       cfg.UserDB.User,
			Password:   cfg.UserDB.Password,
			Host:       cfg.UserDB.Host,
			Name:       cfg.UserDB.Name,
			DisableTLS: cfg.UserDB.DisableTLS,
		})
		if err != nil {
			return fmt.Errorf("connecting to user db: %w", err)
		}
		defer func() {
			log.Printf("main: User database stopping : %s", cfg.UserDB.Host)
			if err := userDB.Close(); err != nil {
				log.Printf("main: error closing user database: %v", err)
			}
		}()
		userStore = users.NewStore(userDB)
	}

	client := feed.NewClient(log, feed.Config{
		PublicKeyURL:    cfg.Feed.PublicKeyURL,
		FleetURL:        cfg.Feed.FleetURL,
		TaskURLTemplate: cfg.Feed.TaskURLTemplate,
		KeyTimeout:      time.Duration(cfg.Feed.KeyTimeoutSeconds) * time.Second,
		DataTimeout:     time.Duration(cfg.Feed.TimeoutSeconds) * time.Second,
	})

	var natsConnection *nats.Conn
	if cfg.NATS.URL != "" {
		log.Printf("main: Connecting to NATS at %s", cfg.NATS.URL)
		natsConnection, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsConnection.Close()
	}

	// =========================================================================
	// Background loops and web service

	cache := fleet.NewSnapshotCache()
	publisher := monitor.NewDeltaPublisher(log, natsConnection)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	loopShutdown := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.RunPollerLoop(log, client, cache, historyStore, publisher,
			time.Duration(cfg.Feed.PollMilliseconds)*time.Millisecond, loopShutdown)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.RunReclaimerLoop(log, historyStore,
			time.Duration(cfg.History.CleanupSeconds)*time.Second,
			time.Duration(cfg.History.RetentionSeconds)*time.Second, loopShutdown)
	}()

	service := webservice.NewService(log, client, cache, historyStore, userStore)
	wg.Add(1)
	go func() {
		defer wg.Done()
		webservice.RunWebService(log, service, cfg.Web.Port, loopShutdown)
	}()

	<-shutdown
	log.Printf("main: shutdown signal received")
	close(loopShutdown)
	wg.Wait()
	return nil
}
