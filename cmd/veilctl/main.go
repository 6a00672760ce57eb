package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/config"
	"github.com/veilhq/veil/internal/export"
	"github.com/veilhq/veil/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "configs/default.yaml", "Configuration file path")
		outputFile = flag.String("output", "", "Output file (CSV, Parquet, or JSON by extension)")
		rule       = flag.String("rule", "", "Only export findings for this rule")
		source     = flag.String("source", "", "Only export findings from this source (api, proxy)")
		since      = flag.Duration("since", 0, "Only export findings newer than this duration (e.g. 24h)")
		sortBy     = flag.String("sort", "", "Sort by: time, rule or hits")
		descending = flag.Bool("desc", false, "Sort in descending order")
		offset     = flag.Int("offset", 0, "Skip this many findings")
		limit      = flag.Int("limit", 0, "Export at most this many findings (0 = all)")
		anonymize  = flag.Bool("anonymize", false, "Replace request IDs with stable digests")
		showStats  = flag.Bool("stats", false, "Show audit store statistics and exit")
	)
	flag.Parse()

	if *outputFile == "" && !*showStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --output findings.csv --since 24h\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --output findings.parquet --rule Password --sort hits --desc\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --output findings.json --anonymize --limit 1000\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	store, err := audit.NewStore(&audit.Config{
		DatabaseURL:     cfg.Audit.DatabaseURL,
		MaxOpenConns:    cfg.Audit.MaxOpenConns,
		MaxIdleConns:    cfg.Audit.MaxIdleConns,
		ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
	}, log.WithComponent("audit").Logger)
	if err != nil {
		log.Fatal("Failed to connect to audit store", zap.Error(err))
	}
	defer store.Close()

	if *showStats {
		printStats(ctx, store)
		return
	}

	listOptions := &audit.ListOptions{}
	if *since > 0 {
		listOptions.Since = time.Now().Add(-*since)
	}

	records, err := store.List(ctx, listOptions)
	if err != nil {
		log.Fatal("Failed to list findings", zap.Error(err))
	}

	shaped := export.Shape(records, export.Options{
		Rule:       *rule,
		Source:     *source,
		SortBy:     *sortBy,
		Descending: *descending,
		Offset:     *offset,
		Limit:      *limit,
		Anonymize:  *anonymize,
	})

	file, err := os.Create(*outputFile)
	if err != nil {
		log.Fatal("Failed to create output file", zap.Error(err))
	}
	defer file.Close()

	if err := export.Write(file, *outputFile, shaped); err != nil {
		log.Fatal("Failed to write export", zap.Error(err))
	}

	log.Info("Export completed",
		zap.String("output", *outputFile),
		zap.Int("fetched", len(records)),
		zap.Int("exported", len(shaped)))
}

func printStats(ctx context.Context, store *audit.Store) {
	stats, err := store.GetStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch statistics: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode statistics: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
