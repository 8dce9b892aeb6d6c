package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/SusheelSathyaraj/LibrosAutoresBench/config"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/database"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/loader"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/migration"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/monitoring"
	"github.com/SusheelSathyaraj/LibrosAutoresBench/process"
)

// runFlags are the command line overrides applied on top of the config file.
type runFlags struct {
	reduced              bool
	stopOnError          bool
	continueOnBatchError bool
	skip                 string
	only                 string
	report               string
}

// parseStageList splits a comma separated label list, dropping blanks.
func parseStageList(s string) []string {
	var labels []string
	for _, part := range strings.Split(s, ",") {
		if label := strings.ToLower(strings.TrimSpace(part)); label != "" {
			labels = append(labels, label)
		}
	}
	return labels
}

func isValidStage(label string, labels []string) bool {
	for _, v := range labels {
		if strings.EqualFold(v, label) {
			return true
		}
	}
	return false
}

func applyFlags(cfg *config.Config, f runFlags) error {
	if f.reduced && !cfg.Pipeline.Reduced {
		cfg.Pipeline.ApplyReduced()
	}
	if f.stopOnError {
		cfg.Pipeline.StopOnError = true
	}
	if f.continueOnBatchError {
		cfg.Pipeline.ContinueOnBatchError = true
	}
	if f.report != "" {
		cfg.Paths.ReportPath = f.report
	}
	if skip := parseStageList(f.skip); len(skip) > 0 {
		cfg.Pipeline.Skip = skip
	}
	if only := parseStageList(f.only); len(only) > 0 {
		cfg.Pipeline.Only = only
	}

	known := migration.StageLabels()
	for _, label := range append(append([]string{}, cfg.Pipeline.Skip...), cfg.Pipeline.Only...) {
		if !isValidStage(label, known) {
			return fmt.Errorf("unknown stage %s", label)
		}
	}
	return cfg.Pipeline.Validate()
}

func loadOptions(cfg *config.Config) []loader.Option {
	opts := []loader.Option{loader.WithBatchSize(cfg.Pipeline.BatchSize)}
	if cfg.Pipeline.ContinueOnBatchError {
		opts = append(opts, loader.WithContinueOnError())
	}
	return opts
}

func newToolkit(cfg *config.Config) *process.Toolkit {
	tk := process.NewToolkit(
		process.MySQLTarget{
			Host:     cfg.MySQL.Host,
			Port:     cfg.MySQL.Port,
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			Database: cfg.MySQL.DBName,
		},
		process.MongoTarget{
			URI:      cfg.MongoDB.ConnectionURI(),
			Database: cfg.MongoDB.DBName,
		},
	)
	tk.MySQLBin = cfg.Tools.MySQL
	tk.MySQLDumpBin = cfg.Tools.MySQLDump
	tk.MongoImportBin = cfg.Tools.MongoImport
	tk.MongoExportBin = cfg.Tools.MongoExport
	tk.MongoshBin = cfg.Tools.Mongosh
	return tk
}

// ensureDatabase creates the MySQL schema through a connection without a
// default database.
func ensureDatabase(ctx context.Context, cfg *config.Config) error {
	admin := database.NewMySQLClient(cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, "")
	if err := admin.ConnectContext(ctx); err != nil {
		return err
	}
	defer admin.Close()

	stmt := "CREATE DATABASE IF NOT EXISTS " + loader.MySQL.QuoteIdentifier(cfg.MySQL.DBName)
	if _, err := admin.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.MySQL.DBName, err)
	}
	return nil
}

func run(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := monitoring.NewMigrationLogger(os.Stderr, "bench")

	if err := os.MkdirAll(cfg.Paths.TmpDir, 0755); err != nil {
		log.Printf("Failed to create temp directory %s, %v", cfg.Paths.TmpDir, err)
		return 1
	}
	if err := ensureDatabase(ctx, cfg); err != nil {
		log.Printf("Failed to prepare MySQL database, %v", err)
		return 1
	}

	mysqlClient := database.NewMySQLClientFromConfig(cfg)
	if err := mysqlClient.ConnectContext(ctx); err != nil {
		log.Printf("Failed to connect to MySQL, %v", err)
		return 1
	}
	defer mysqlClient.Close()

	mongoClient := database.NewMongoDBClientFromConfig(cfg)
	if err := mongoClient.Connect(ctx); err != nil {
		log.Printf("Failed to connect to MongoDB, %v", err)
		return 1
	}
	defer mongoClient.Close(context.Background())

	store := migration.NewMySQLStore(mysqlClient, cfg.MySQL.LocalInfile)
	engine, err := migration.NewEngine(cfg, store, mongoClient, newToolkit(cfg), logger)
	if err != nil {
		log.Printf("Failed to create benchmark engine, %v", err)
		return 1
	}
	opts := append(loadOptions(cfg), loader.WithProgress(engine.ReportRows))
	store.LoadOptions = opts
	engine.PostgresOptions = opts

	if cfg.PostgreSQL.Enabled {
		pg := database.NewPostgreSQLClientFromConfig(cfg)
		if err := pg.Connect(ctx); err != nil {
			log.Printf("Failed to connect to PostgreSQL, %v", err)
			return 1
		}
		defer pg.Close()
		engine.Postgres = pg
	}

	result, err := engine.Run(ctx)
	if err != nil {
		log.Printf("Benchmark finished with %d failed stages: %v", len(result.Failed()), err)
		return 1
	}
	fmt.Printf("Benchmark %s completed in %v\n", result.RunID, result.Total)
	return 0
}

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml), defaults and environment are used when empty")
	reduced := flag.Bool("reduced-data", false, "Run with the reduced dataset")
	skip := flag.String("skip", "", "Comma separated stage labels to skip")
	only := flag.String("only", "", "Comma separated stage labels to run, all others are skipped")
	stopOnError := flag.Bool("stop-on-error", false, "Skip the remaining stages after the first failure")
	continueOnBatchError := flag.Bool("continue-on-batch-error", false, "Keep loading after a failed batch and tolerate row count mismatches")
	report := flag.String("report", "", "Path of the HTML report")
	flag.Parse()

	config.LoadEnvFiles()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading config %v", err)
	}

	err = applyFlags(cfg, runFlags{
		reduced:              *reduced,
		stopOnError:          *stopOnError,
		continueOnBatchError: *continueOnBatchError,
		skip:                 *skip,
		only:                 *only,
		report:               *report,
	})
	if err != nil {
		fmt.Println("Error:", err)
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(run(cfg))
}
