package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fruitchain/engine"
	"fruitchain/ledger"
	"fruitchain/repository"
	"fruitchain/server"
	service_registry "fruitchain/srvreg"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/spf13/viper"
)

var (
	configFile   string
	httpPort     string
	postgresHost string
	journalPath  string
	seedData     bool
)

func init() {
	flag.StringVar(&configFile, "config", "./config.toml", "Path to the config file")
	flag.StringVar(&httpPort, "http-port", "5000", "HTTP web server port")
	flag.StringVar(&postgresHost, "postgres-host", "fruitchain-postgres:5432", "DB host address")
	flag.StringVar(&journalPath, "journal-path", "./data/journal", "Submission journal directory")
	flag.BoolVar(&seedData, "seed", false, "Seed the mirror with development data")
}

func main() {
	// Load Config
	flag.Parse()

	viper.SetDefault("ledger.node_url", "http://localhost:8545")
	viper.SetDefault("ledger.network_id", "1337")
	viper.SetDefault("ledger.confirmation_depth", 1)
	viper.SetDefault("ledger.confirm_timeout", "90s")
	viper.SetDefault("ledger.poll_interval", "2s")
	viper.SetDefault("ledger.fallback_fee_limit", 3_000_000)
	viper.SetDefault("reconciler.interval", "30s")

	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Reading config: %v, continuing with defaults", err)
	}

	ledgerCfg := ledger.DefaultConfig()
	ledgerCfg.NodeURL = viper.GetString("ledger.node_url")
	ledgerCfg.NetworkID = viper.GetString("ledger.network_id")
	ledgerCfg.ContractAddress = viper.GetString("ledger.contract_address")
	ledgerCfg.ConfirmationDepth = viper.GetInt64("ledger.confirmation_depth")
	ledgerCfg.ConfirmTimeout = viper.GetDuration("ledger.confirm_timeout")
	ledgerCfg.PollInterval = viper.GetDuration("ledger.poll_interval")
	ledgerCfg.FallbackFeeLimit = viper.GetUint64("ledger.fallback_fee_limit")
	if ledgerCfg.ContractAddress == "" {
		log.Fatalf("ledger.contract_address is required")
	}

	logger := cmtlog.NewTMLogger(cmtlog.NewSyncWriter(os.Stdout))

	// Connect Postgresql DB
	dsn := fmt.Sprintf("postgresql://postgres:postgrespassword@%s/postgres", postgresHost)
	repo := repository.NewRepository()
	log.Printf("Connecting to: %s\n", dsn)
	if err := repo.ConnectDB(dsn); err != nil {
		log.Fatalf("Connecting to database: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		log.Fatalf("Migrating mirror schema: %v", err)
	}
	if seedData {
		repo.Seed()
	}

	// Initialize the submission journal
	journal, err := ledger.OpenJournal(journalPath)
	if err != nil {
		log.Fatalf("Opening journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			log.Printf("Closing journal: %v", err)
		}
	}()

	// Ledger gateway, guard and contract binding
	gateway := ledger.NewGateway(ledgerCfg, journal, logger)
	guard := ledger.NewGuard(gateway, logger)
	contract := ledger.NewContract(gateway)

	eng := engine.New(guard, contract, repo, logger)

	// Initialize Service Registry
	serviceRegistry := service_registry.NewServiceRegistry(eng, repo, logger)
	serviceRegistry.RegisterDefaultServices()

	// Background reconciliation of mirror divergences
	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	reconciler := engine.NewReconciler(contract, repo, viper.GetDuration("reconciler.interval"), logger)
	go reconciler.Run(reconcilerCtx)

	// Start Web Server
	webserver, err := server.NewWebServer(httpPort, logger, serviceRegistry, guard, repo)
	if err != nil {
		log.Fatalf("Creating web server: %v", err)
	}

	err = webserver.Start()
	if err != nil {
		log.Fatalf("Starting HTTP server: %v", err)
	}

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	stopReconciler()

	// Create deadline to wait for server shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown the web server
	err = webserver.Shutdown(ctx)
	if err != nil {
		logger.Error("Shutting down HTTP web server", "err", err)
	}
	logger.Info("HTTP web server gracefully stopped")
}
