package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fleetver/fleetver/internal/apiserver"
	"github.com/fleetver/fleetver/internal/auth"
	"github.com/fleetver/fleetver/internal/config"
	"github.com/fleetver/fleetver/internal/differ"
	"github.com/fleetver/fleetver/internal/discovery"
	"github.com/fleetver/fleetver/internal/dvp"
	"github.com/fleetver/fleetver/internal/fverrors"
	"github.com/fleetver/fleetver/internal/reconciler"
	"github.com/fleetver/fleetver/internal/scheduler"
	"github.com/fleetver/fleetver/internal/service"
	"github.com/fleetver/fleetver/internal/store"
	"github.com/fleetver/fleetver/internal/webhook"
	"github.com/fleetver/fleetver/pkg/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	log := log.InitLogs()
	log.Println("Starting fleetver API service")
	defer log.Println("fleetver API service stopped")

	var (
		configFile         string
		host               string
		port               int
		dbFile             string
		pollWorkers        int
		pollIntervalS      float64
		registrationToken  string
		defaultClusterID   int64
		defaultClusterName string
		webhookURL         string
		apiToken           string
		logLevel           string
	)
	pflag.StringVar(&configFile, "config", config.ConfigFile(), "path to the config file")
	pflag.StringVar(&host, "host", "", "bind host, overrides the config")
	pflag.IntVar(&port, "port", 0, "bind port, overrides the config")
	pflag.StringVar(&dbFile, "db", "", "sqlite database file, overrides the config")
	pflag.IntVar(&pollWorkers, "poll-workers", 0, "poll fan-out width, overrides the config")
	pflag.Float64Var(&pollIntervalS, "poll-interval", -1, "seconds between poll passes, 0 disables the loop")
	pflag.StringVar(&registrationToken, "registration-token", "", "token devices present to self-register")
	pflag.Int64Var(&defaultClusterID, "default-cluster-id", 0, "cluster id used when register omits one")
	pflag.StringVar(&defaultClusterName, "default-cluster-name", "", "cluster name used when register omits one, created when missing")
	pflag.StringVar(&webhookURL, "webhook-url", "", "URL receiving event notifications")
	pflag.StringVar(&apiToken, "api-token", "", "static admin API token")
	pflag.StringVar(&logLevel, "log-level", "", "log level, overrides the config")
	pflag.Parse()

	cfg, err := config.LoadOrGenerate(configFile)
	if err != nil {
		log.Fatalf("reading configuration: %v", err)
	}
	applyFlagOverrides(cfg, host, port, dbFile, pollWorkers, pollIntervalS,
		registrationToken, defaultClusterID, defaultClusterName, webhookURL, apiToken, logLevel)
	log.Printf("Using config: %s", cfg)

	logLvl, err := logrus.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = logrus.InfoLevel
	}
	log.SetLevel(logLvl)

	log.Println("Initializing data store")
	db, err := store.InitDB(cfg, log)
	if err != nil {
		log.Fatalf("initializing data store: %v", err)
	}
	dataStore := store.NewStore(db, log.WithField("pkg", "store"))
	defer dataStore.Close()

	if err := dataStore.InitialMigration(); err != nil {
		log.Fatalf("running initial migration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := resolveDefaultCluster(ctx, cfg, dataStore, log); err != nil {
		log.Fatalf("resolving default cluster: %v", err)
	}

	client := dvp.NewClient(log.WithField("pkg", "dvp"))
	notifier := webhook.NewNotifier(cfg.Webhook.URL, log.WithField("pkg", "webhook"))
	diff := differ.New(dataStore, client, log.WithField("pkg", "differ"))
	rec := reconciler.New(dataStore, client, diff, notifier, log.WithField("pkg", "reconciler"))

	sched := scheduler.New(dataStore, rec,
		cfg.Scheduler.PollWorkers,
		time.Duration(cfg.Scheduler.PollIntervalSeconds*float64(time.Second)),
		log.WithField("pkg", "scheduler"))
	sched.Start(ctx)
	defer sched.Stop()

	gate := auth.NewGate(dataStore, cfg.Auth.APIToken, log.WithField("pkg", "auth"))
	disc := discovery.New(dataStore, client, log.WithField("pkg", "discovery"))
	svc := service.NewServiceHandler(dataStore, gate, sched, disc, rec, client, cfg, log.WithField("pkg", "service"))

	server := apiserver.New(cfg, svc, log)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("running API server: %v", err)
	}
}

func applyFlagOverrides(cfg *config.Config, host string, port int, dbFile string,
	pollWorkers int, pollIntervalS float64, registrationToken string,
	defaultClusterID int64, defaultClusterName, webhookURL, apiToken, logLevel string) {
	if host != "" || port > 0 {
		bindHost, bindPort := splitAddress(cfg.Service.Address)
		if host != "" {
			bindHost = host
		}
		if port > 0 {
			bindPort = port
		}
		cfg.Service.Address = joinAddress(bindHost, bindPort)
	}
	if dbFile != "" {
		cfg.Database.Type = "sqlite"
		cfg.Database.File = dbFile
	}
	if pollWorkers > 0 {
		cfg.Scheduler.PollWorkers = pollWorkers
	}
	if pollIntervalS >= 0 {
		cfg.Scheduler.PollIntervalSeconds = pollIntervalS
	}
	if registrationToken != "" {
		cfg.Auth.RegistrationToken = registrationToken
	}
	if defaultClusterID > 0 {
		cfg.Auth.DefaultClusterID = &defaultClusterID
	}
	if defaultClusterName != "" {
		cfg.Auth.DefaultClusterName = defaultClusterName
	}
	if webhookURL != "" {
		cfg.Webhook.URL = webhookURL
	}
	if apiToken != "" {
		cfg.Auth.APIToken = apiToken
	}
	if logLevel != "" {
		cfg.Service.LogLevel = logLevel
	}
}

// resolveDefaultCluster turns a configured default cluster name into an id,
// creating the cluster on first start.
func resolveDefaultCluster(ctx context.Context, cfg *config.Config, dataStore store.Store, log logrus.FieldLogger) error {
	if cfg.Auth.DefaultClusterID != nil || cfg.Auth.DefaultClusterName == "" {
		return nil
	}
	cluster, err := dataStore.Cluster().GetByName(ctx, cfg.Auth.DefaultClusterName)
	if err == nil {
		cfg.Auth.DefaultClusterID = &cluster.ID
		return nil
	}
	if !errors.Is(err, fverrors.ErrResourceNotFound) {
		return err
	}
	id, err := dataStore.Cluster().Create(ctx, cfg.Auth.DefaultClusterName, nil)
	if err != nil {
		return err
	}
	log.Infof("Created default cluster %q (id=%d)", cfg.Auth.DefaultClusterName, id)
	cfg.Auth.DefaultClusterID = &id
	return nil
}

func splitAddress(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 8080
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 8080
	}
	return host, port
}

func joinAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
