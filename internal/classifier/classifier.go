// Package classifier assigns counterparty categories to ledger addresses.
package classifier

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"whale-watch/internal/domain"
	"whale-watch/internal/ledger"
	"whale-watch/internal/storage"
)

// Classifier assigns a category and confidence to an address. Implementations
// must be side-effect-free with respect to the pipeline: the same address
// yields the same verdict for the life of the retention window.
type Classifier interface {
	Classify(ctx context.Context, address string) domain.Classification
}

// Heuristic configuration defaults.
const (
	DefaultMinTransfers     = 5
	DefaultLookbackMs       = 24 * 3600 * 1000
	DefaultConsolidationMax = 0.25
	DefaultCacheEntries     = 10_000
	heuristicConfidenceCap  = 0.7
)

// HeuristicConfig tunes the behavioral fallback.
type HeuristicConfig struct {
	// MinTransfers is the minimum observed transfer count before the
	// behavioral heuristic applies.
	MinTransfers int
	// LookbackMs is the observation window for transaction shape, ms.
	LookbackMs int64
	// ConsolidationMax is the distinct-counterparty ratio at or below
	// which an address is treated as a consolidating exchange wallet.
	ConsolidationMax float64
	// CacheEntries bounds the verdict cache. When full the cache is
	// dropped wholesale; verdicts are only stable for the life of the
	// retention window anyway.
	CacheEntries int
}

// DefaultHeuristicConfig returns the default heuristic parameters.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		MinTransfers:     DefaultMinTransfers,
		LookbackMs:       DefaultLookbackMs,
		ConsolidationMax: DefaultConsolidationMax,
		CacheEntries:     DefaultCacheEntries,
	}
}

// Heuristic is the default Classifier. Lookup order: known-address table
// (confidence 1.0), bytecode presence (contract, 0.8), transaction-shape
// heuristic (capped at 0.7), unknown fallback (0.3). Verdicts are cached per
// address.
type Heuristic struct {
	source    ledger.Source
	movements storage.MovementStore
	config    HeuristicConfig
	now       func() int64
	logger    *log.Logger

	mu    sync.RWMutex
	cache map[string]domain.Classification
}

// HeuristicOptions configures a Heuristic classifier.
type HeuristicOptions struct {
	Source    ledger.Source
	Movements storage.MovementStore
	Config    HeuristicConfig
	Now       func() int64 // current time in ms; defaults to wall clock
	Logger    *log.Logger
}

// NewHeuristic creates the default classifier.
func NewHeuristic(opts HeuristicOptions) *Heuristic {
	config := opts.Config
	if config.MinTransfers == 0 {
		config.MinTransfers = DefaultMinTransfers
	}
	if config.LookbackMs == 0 {
		config.LookbackMs = DefaultLookbackMs
	}
	if config.ConsolidationMax == 0 {
		config.ConsolidationMax = DefaultConsolidationMax
	}
	if config.CacheEntries == 0 {
		config.CacheEntries = DefaultCacheEntries
	}

	now := opts.Now
	if now == nil {
		now = nowMs
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Heuristic{
		source:    opts.Source,
		movements: opts.Movements,
		config:    config,
		now:       now,
		logger:    logger,
		cache:     make(map[string]domain.Classification),
	}
}

// Compile-time interface check.
var _ Classifier = (*Heuristic)(nil)

// Classify assigns a category and confidence to an address.
func (h *Heuristic) Classify(ctx context.Context, address string) domain.Classification {
	addr := strings.ToLower(address)

	h.mu.RLock()
	cached, ok := h.cache[addr]
	h.mu.RUnlock()
	if ok {
		return cached
	}

	c, cacheable := h.classify(ctx, addr)
	if cacheable {
		h.mu.Lock()
		if len(h.cache) >= h.config.CacheEntries {
			h.cache = make(map[string]domain.Classification)
		}
		h.cache[addr] = c
		h.mu.Unlock()
	}
	return c
}

// classify runs the lookup ladder. The second return reports whether the
// verdict may be cached; verdicts degraded by a source failure are not.
func (h *Heuristic) classify(ctx context.Context, addr string) (domain.Classification, bool) {
	if entity, ok := knownExchanges[addr]; ok {
		return domain.Classification{
			Address:     addr,
			Category:    domain.CategoryExchangeCold,
			Confidence:  1.0,
			KnownEntity: entity,
		}, true
	}
	if entity, ok := knownProtocols[addr]; ok {
		return domain.Classification{
			Address:     addr,
			Category:    domain.CategoryContract,
			Confidence:  1.0,
			KnownEntity: entity,
		}, true
	}

	if h.source != nil {
		isContract, err := h.source.IsContract(ctx, addr)
		if err != nil {
			// Degrade to the behavioral heuristic; do not cache so the
			// bytecode check is retried on the next movement.
			h.logger.Printf("bytecode check failed for %s: %v", addr, err)
			c := h.behavioral(ctx, addr)
			return c, false
		}
		if isContract {
			return domain.Classification{
				Address:    addr,
				Category:   domain.CategoryContract,
				Confidence: 0.8,
			}, true
		}
	}

	return h.behavioral(ctx, addr), true
}

// behavioral applies the transaction-shape fallback over the retained window.
func (h *Heuristic) behavioral(ctx context.Context, addr string) domain.Classification {
	unknown := domain.Classification{
		Address:    addr,
		Category:   domain.CategoryUnknown,
		Confidence: 0.3,
	}

	if h.movements == nil {
		return unknown
	}

	since := h.now() - h.config.LookbackMs
	observed, err := h.movements.GetByAddress(ctx, addr, since)
	if err != nil {
		h.logger.Printf("movement lookback failed for %s: %v", addr, err)
		return unknown
	}
	if len(observed) < h.config.MinTransfers {
		return unknown
	}

	distinct := make(map[string]bool)
	for _, m := range observed {
		if m.FromAddress == addr {
			distinct[m.ToAddress] = true
		} else {
			distinct[m.FromAddress] = true
		}
	}
	ratio := float64(len(distinct)) / float64(len(observed))

	var c domain.Classification
	if ratio <= h.config.ConsolidationMax {
		// Repeated flows against a small fixed counterparty set:
		// consolidation pattern typical of exchange cold storage.
		c = domain.Classification{
			Address:    addr,
			Category:   domain.CategoryExchangeCold,
			Confidence: 0.6,
		}
	} else {
		c = domain.Classification{
			Address:    addr,
			Category:   domain.CategoryPrivate,
			Confidence: 0.55,
		}
	}

	if c.Confidence > heuristicConfidenceCap {
		c.Confidence = heuristicConfidenceCap
	}
	if c.Confidence < domain.ConfidenceFloor {
		c.Category = domain.CategoryUnknown
	}
	return c
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
