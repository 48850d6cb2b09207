// Package main provides a one-shot range scan: detect and classify
// qualifying movements over an explicit height range and print them.
// Useful for spot-checking thresholds against a live endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"whale-watch/internal/classifier"
	"whale-watch/internal/ledger"
	"whale-watch/internal/scanner"
	"whale-watch/internal/storage/memory"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("LEDGER_RPC_ENDPOINT"), "Ledger RPC HTTP endpoint")
	stableContract := flag.String("stable-contract", os.Getenv("STABLE_CONTRACT"), "Stable-asset contract address")
	from := flag.Int64("from", 0, "First height of the scan range (inclusive)")
	to := flag.Int64("to", 0, "Last height of the scan range (inclusive, 0 = current tip)")
	nativeThreshold := flag.Float64("native-threshold", scanner.DefaultNativeThreshold, "Native transfer threshold in whole units")
	stableThreshold := flag.Float64("stable-threshold", scanner.DefaultStableThreshold, "Stable transfer threshold in whole units")
	asJSON := flag.Bool("json", false, "Print movements as JSON lines")

	flag.Parse()

	logger := log.New(os.Stderr, "[scan] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *from <= 0 {
		logger.Fatal("--from is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source := ledger.NewHTTPClient(*rpcEndpoint, *stableContract)

	if *to == 0 {
		tip, err := source.BlockNumber(ctx)
		if err != nil {
			logger.Fatalf("Failed to get tip height: %v", err)
		}
		*to = tip
	}
	if *to < *from {
		logger.Fatalf("Invalid range: from %d > to %d", *from, *to)
	}

	scn := scanner.NewScanner(source, scanner.Config{
		NativeThreshold: *nativeThreshold,
		StableThreshold: *stableThreshold,
	})
	cls := classifier.NewHeuristic(classifier.HeuristicOptions{
		Source:    source,
		Movements: memory.NewMovementStore(),
		Logger:    logger,
	})

	logger.Printf("Scanning heights %d..%d", *from, *to)

	movements, err := scn.Scan(ctx, *from, *to)
	if err != nil {
		logger.Fatalf("Scan failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	for _, m := range movements {
		verdict := cls.Classify(ctx, m.FromAddress)
		if *asJSON {
			out := struct {
				ID          string  `json:"id"`
				AssetKind   string  `json:"asset_kind"`
				TxHash      string  `json:"tx_hash"`
				From        string  `json:"from_address"`
				To          string  `json:"to_address"`
				Amount      float64 `json:"amount"`
				Height      int64   `json:"source_height"`
				Category    string  `json:"category"`
				Confidence  float64 `json:"confidence"`
				KnownEntity string  `json:"known_entity,omitempty"`
			}{
				ID:          m.ID,
				AssetKind:   m.AssetKind.String(),
				TxHash:      m.TxHash,
				From:        m.FromAddress,
				To:          m.ToAddress,
				Amount:      m.Amount,
				Height:      m.SourceHeight,
				Category:    verdict.Category.String(),
				Confidence:  verdict.Confidence,
				KnownEntity: verdict.KnownEntity,
			}
			if err := enc.Encode(out); err != nil {
				logger.Fatalf("Encode failed: %v", err)
			}
			continue
		}

		entity := verdict.KnownEntity
		if entity == "" {
			entity = "-"
		}
		fmt.Printf("%-8d %-6s %12.2f  %s -> %s  [%s %.2f %s]\n",
			m.SourceHeight, m.AssetKind, m.Amount, m.FromAddress, m.ToAddress,
			verdict.Category, verdict.Confidence, entity)
	}

	logger.Printf("Detected %d movements", len(movements))
}
