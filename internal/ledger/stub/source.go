// Package stub provides a scripted ledger source for tests.
package stub

import (
	"context"
	"sync"

	"whale-watch/internal/ledger"
)

// Source is a scripted in-memory implementation of ledger.Source.
// Transfers are registered per height; failures can be injected per range.
type Source struct {
	mu        sync.Mutex
	tip       int64
	native    map[int64][]ledger.RawTransfer
	stable    map[int64][]ledger.RawTransfer
	contracts map[string]bool
	failNext  error // injected error for the next GetTransfersInRange call
	calls     int   // number of GetTransfersInRange calls served
}

// NewSource creates an empty stub source.
func NewSource() *Source {
	return &Source{
		native:    make(map[int64][]ledger.RawTransfer),
		stable:    make(map[int64][]ledger.RawTransfer),
		contracts: make(map[string]bool),
	}
}

// Compile-time interface check.
var _ ledger.Source = (*Source)(nil)

// SetTip sets the current tip height.
func (s *Source) SetTip(height int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tip = height
}

// AddNative registers a native transfer at its height.
func (s *Source) AddNative(t ledger.RawTransfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.native[t.Height] = append(s.native[t.Height], t)
}

// AddStable registers a stable transfer at its height.
func (s *Source) AddStable(t ledger.RawTransfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stable[t.Height] = append(s.stable[t.Height], t)
}

// MarkContract records that an address has bytecode.
func (s *Source) MarkContract(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[address] = true
}

// FailNext injects an error for the next GetTransfersInRange call.
func (s *Source) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Calls returns the number of GetTransfersInRange calls served.
func (s *Source) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// BlockNumber returns the scripted tip height.
func (s *Source) BlockNumber(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip, nil
}

// GetTransfersInRange returns scripted transfers for [from, to].
func (s *Source) GetTransfersInRange(_ context.Context, from, to int64) (*ledger.TransferBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}

	var native, stable []ledger.RawTransfer
	for h := from; h <= to; h++ {
		native = append(native, s.native[h]...)
		stable = append(stable, s.stable[h]...)
	}
	return &ledger.TransferBatch{Native: native, Stable: stable}, nil
}

// IsContract reports the scripted bytecode presence.
func (s *Source) IsContract(_ context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contracts[address], nil
}
