// Package main provides the unified whale-watch service:
// - Scan loop (continuous): ledger polling, movement detection, classification, alerting
// - Dispatch (continuous): webhook fan-out with per-subscriber retry lanes
// - HTTP API: query surface, subscriptions, predictions, live alert stream, metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"whale-watch/internal/alerting"
	"whale-watch/internal/api"
	"whale-watch/internal/classifier"
	"whale-watch/internal/dispatch"
	"whale-watch/internal/ledger"
	"whale-watch/internal/scanner"
	"whale-watch/internal/settlement"
	"whale-watch/internal/storage"
	chstore "whale-watch/internal/storage/clickhouse"
	"whale-watch/internal/storage/memory"
	"whale-watch/internal/storage/migrations"
	pgstore "whale-watch/internal/storage/postgres"
)

func main() {
	// Load .env file if exists; system env vars take precedence.
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", envOr("WHALE_WATCH_ADDR", ":8080"), "HTTP listen address")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("LEDGER_RPC_ENDPOINT"), "Ledger RPC HTTP endpoint")
	stableContract := flag.String("stable-contract", os.Getenv("STABLE_CONTRACT"), "Stable-asset contract address to watch for transfer logs")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional, enables the movement archive)")
	useMemory := flag.Bool("use-memory", envBool("USE_MEMORY"), "Use in-memory storage instead of PostgreSQL")
	scanInterval := flag.Duration("scan-interval", scanner.DefaultScanInterval, "Scan cycle interval")
	blockSpan := flag.Int64("block-span", scanner.DefaultBlockSpan, "Heights per scan window")
	nativeThreshold := flag.Float64("native-threshold", scanner.DefaultNativeThreshold, "Native transfer threshold in whole units")
	stableThreshold := flag.Float64("stable-threshold", scanner.DefaultStableThreshold, "Stable transfer threshold in whole units")
	retentionAge := flag.Duration("retention-age", scanner.DefaultRetentionAge, "Movement retention age")
	retentionMax := flag.Int("retention-max", scanner.DefaultRetentionMax, "Maximum retained movements")
	workers := flag.Int("dispatch-workers", dispatch.DefaultWorkers, "Webhook delivery worker count")
	agentBalance := flag.Int64("agent-balance", 1000, "Initial settlement balance granted per agent")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Ledger source. Startup is fatal if the endpoint is unreachable; a
	// failure after startup only holds the cursor.
	source := ledger.NewHTTPClient(*rpcEndpoint, *stableContract)
	tip, err := source.BlockNumber(ctx)
	if err != nil {
		logger.Fatalf("Ledger endpoint unreachable: %v", err)
	}
	logger.Printf("Connected to ledger endpoint %s, tip height %d", *rpcEndpoint, tip)

	cursor, err := scanner.NewCursor(ctx, stores.cursor, *blockSpan, tip-*blockSpan)
	if err != nil {
		logger.Fatalf("Failed to initialize scan cursor: %v", err)
	}

	// Detection pipeline
	scn := scanner.NewScanner(source, scanner.Config{
		NativeThreshold: *nativeThreshold,
		StableThreshold: *stableThreshold,
	})
	cls := classifier.NewHeuristic(classifier.HeuristicOptions{
		Source:    source,
		Movements: stores.movements,
		Logger:    log.New(os.Stdout, "[classifier] ", log.LstdFlags),
	})
	engine := alerting.NewEngine(alerting.Options{Alerts: stores.alerts})

	// Webhook dispatch
	registry, err := dispatch.NewRegistry(ctx, dispatch.RegistryOptions{
		Store:  stores.subscriptions,
		Logger: log.New(os.Stdout, "[dispatch] ", log.LstdFlags),
	})
	if err != nil {
		logger.Fatalf("Failed to load subscriptions: %v", err)
	}
	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherOptions{
		Registry:  registry,
		Deliverer: dispatch.NewDeliverer(dispatch.DelivererOptions{}),
		Workers:   *workers,
		Logger:    log.New(os.Stdout, "[dispatch] ", log.LstdFlags),
	})

	// Prediction settlement
	orchestrator := settlement.NewOrchestrator(settlement.OrchestratorOptions{
		Movements:   stores.movements,
		Predictions: stores.predictions,
		Ledger:      settlement.NewMemoryLedger(*agentBalance, settlement.DefaultRewardPolicy),
		Logger:      log.New(os.Stdout, "[settlement] ", log.LstdFlags),
	})

	// Live alert stream
	hub := api.NewHub(log.New(os.Stdout, "[ws] ", log.LstdFlags))

	// Keep the interface fields nil when no archive is configured.
	var archiveSink scanner.Archiver
	var statsArchive api.StatsArchive
	if stores.archive != nil {
		archiveSink = stores.archive
		statsArchive = stores.archive
	}

	// Scan loop
	runner := scanner.NewRunner(scanner.RunnerOptions{
		Source:       source,
		Scanner:      scn,
		Cursor:       cursor,
		Classifier:   cls,
		Engine:       engine,
		Movements:    stores.movements,
		Alerts:       stores.alerts,
		Sinks:        []scanner.AlertSink{dispatcher, hub},
		Archive:      archiveSink,
		Interval:     *scanInterval,
		RetentionAge: *retentionAge,
		RetentionMax: *retentionMax,
		Logger:       log.New(os.Stdout, "[scanner] ", log.LstdFlags),
	})

	// HTTP API
	server := api.NewServer(api.Options{
		Movements:    stores.movements,
		Alerts:       stores.alerts,
		Registry:     registry,
		Dispatcher:   dispatcher,
		Orchestrator: orchestrator,
		Health:       runner,
		Archive:      statsArchive,
		Hub:          hub,
		Logger:       logger,
	})
	httpServer := &http.Server{Addr: *addr, Handler: server.Router()}

	errCh := make(chan error, 3)

	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scan loop: %w", err)
		}
	}()
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("dispatcher: %w", err)
		}
	}()
	go func() {
		logger.Printf("Starting HTTP server on %s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-errCh:
		logger.Printf("Component failed: %v", err)
	}
	cancel()

	// Wait for second signal for immediate shutdown
	go func() {
		sig := <-sigCh
		logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
		os.Exit(1)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// allStores holds the storage implementations behind the pipeline.
type allStores struct {
	movements     storage.MovementStore
	alerts        storage.AlertStore
	subscriptions storage.SubscriptionStore
	predictions   storage.PredictionStore
	cursor        storage.CursorStore
	archive       *chstore.MovementArchiveStore // nil without ClickHouse
}

// createStores creates all required stores and applies migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			movements:     memory.NewMovementStore(),
			alerts:        memory.NewAlertStore(),
			subscriptions: memory.NewSubscriptionStore(),
			predictions:   memory.NewPredictionStore(),
			cursor:        memory.NewCursorStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &allStores{
		movements:     pgstore.NewMovementStore(pool),
		alerts:        pgstore.NewAlertStore(pool),
		subscriptions: pgstore.NewSubscriptionStore(pool),
		predictions:   pgstore.NewPredictionStore(pool),
		cursor:        pgstore.NewCursorStore(pool, "scan"),
	}
	cleanup := func() { pool.Close() }

	// ClickHouse archive is optional.
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.archive = chstore.NewMovementArchiveStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

// envOr returns the environment variable value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envBool reports whether an environment variable is set to a truthy value.
func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
