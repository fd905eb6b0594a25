// Copyright 2024 The ledgernode Authors
// This file is part of the ledgernode library.
//
// The ledgernode library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledgernode library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledgernode library. If not, see <http://www.gnu.org/licenses/>.

// Package ledger holds the node's in-memory ledger state: the chain, the
// pending-transaction pool, mining status, and the failed-peer map, all
// guarded by a single mutex (spec.md §3, §5).
package ledger

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ledgernet/ledgernode/internal/ledgertypes"
	"github.com/ledgernet/ledgernode/pkg/ledgererr"
)

// MiningStatus mirrors spec.md §3's mining_status: {is_mining, progress}.
type MiningStatus struct {
	IsMining bool
	Progress int
}

// Store is the single owner of a node's chain, pending pool, mining
// status, and failed-peer bookkeeping. Every mutation of these fields
// passes through mu (spec.md §5); callers outside this package never
// see a torn read.
//
// Mining deliberately holds mu across block construction, proof-of-work,
// peer broadcast, and chain append (see internal/node), which serializes
// mining with every other ledger mutation on this node — a documented
// simplification (spec.md §9), not an oversight.
type Store struct {
	mu sync.Mutex

	chain      []*ledgertypes.Block
	pending    []*ledgertypes.Transaction
	difficulty int

	mining MiningStatus

	failedNodes map[string]time.Time
}

// New builds a Store seeded with the genesis block.
func New(difficulty int) *Store {
	return &Store{
		chain:       []*ledgertypes.Block{ledgertypes.NewGenesisBlock()},
		pending:     nil,
		difficulty:  difficulty,
		failedNodes: make(map[string]time.Time),
	}
}

// Difficulty returns the configured proof-of-work difficulty.
func (s *Store) Difficulty() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.difficulty
}

// Lock/Unlock expose the store's mutex directly to internal/node, whose
// mining routine must hold it across block construction, proof-of-work,
// and peer broadcast per spec.md §5 — a single operation that doesn't
// fit any of the narrower accessor methods below.
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

// ChainLocked returns the live chain slice. Callers must hold the store
// lock (via Lock/Unlock) for the duration of use; it exists so the
// mining routine can read and mutate chain state without re-entering the
// mutex.
func (s *Store) ChainLocked() []*ledgertypes.Block { return s.chain }

// PendingLocked returns the live pending slice under the same contract
// as ChainLocked.
func (s *Store) PendingLocked() []*ledgertypes.Transaction { return s.pending }

// SetPendingLocked replaces the pending pool; caller must hold the lock.
func (s *Store) SetPendingLocked(pending []*ledgertypes.Transaction) { s.pending = pending }

// AppendBlockLocked appends b to the chain; caller must hold the lock.
func (s *Store) AppendBlockLocked(b *ledgertypes.Block) { s.chain = append(s.chain, b) }

// MiningStatusLocked returns the current mining status; caller must hold
// the lock.
func (s *Store) MiningStatusLocked() MiningStatus { return s.mining }

// SetMiningStatusLocked updates the mining status; caller must hold the
// lock.
func (s *Store) SetMiningStatusLocked(status MiningStatus) { s.mining = status }

// Chain returns a snapshot of the current chain (shallow: Block pointers
// are shared, matching spec.md §4.2's "latest() returns the last block
// without copying transactions" contract for reads in general).
func (s *Store) Chain() []*ledgertypes.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledgertypes.Block, len(s.chain))
	copy(out, s.chain)
	return out
}

// Pending returns a snapshot of the pending pool.
func (s *Store) Pending() []*ledgertypes.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledgertypes.Transaction, len(s.pending))
	copy(out, s.pending)
	return out
}

// Latest returns the last block in the chain without copying its
// transactions (spec.md §4.2).
func (s *Store) Latest() *ledgertypes.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain[len(s.chain)-1]
}

// Len returns the current chain length.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chain)
}

// BlockAt returns the block at index, or ErrNotFound if out of range.
func (s *Store) BlockAt(index int) (*ledgertypes.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.chain) {
		return nil, errors.Wrapf(ledgererr.ErrNotFound, "block %d", index)
	}
	return s.chain[index], nil
}

// ReplaceBlockAt overwrites the block at index, used by self-healing
// repair (spec.md §4.6). It does not itself re-validate the chain; the
// caller (internal/healing) is responsible for deciding when a repair is
// safe to apply.
func (s *Store) ReplaceBlockAt(index int, b *ledgertypes.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.chain) {
		return errors.Wrapf(ledgererr.ErrNotFound, "block %d", index)
	}
	s.chain[index] = b
	return nil
}

// AppendTransaction admits t to the pending pool if it satisfies T1,
// otherwise returns ErrCRCInvalid (spec.md §4.2).
func (s *Store) AppendTransaction(t *ledgertypes.Transaction) error {
	if !t.VerifyCRC() {
		return errors.Wrapf(ledgererr.ErrCRCInvalid, "transaction crc %s", t.CRC)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, t)
	return nil
}

// RemovePending drops every transaction in mined from the pending pool,
// matching by CRC (the original's "not in valid_transactions" filter,
// adapted since Go slices of pointers aren't directly comparable the way
// Python's `in` check on object identity is — CRC identifies a
// transaction uniquely enough for this purpose since it's only ever
// compared against the exact set just selected for mining).
func (s *Store) RemovePending(mined []*ledgertypes.Transaction) {
	minedCRCs := make(map[string]struct{}, len(mined))
	for _, t := range mined {
		minedCRCs[t.CRC] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[:0:0]
	for _, t := range s.pending {
		if _, found := minedCRCs[t.CRC]; !found {
			kept = append(kept, t)
		}
	}
	s.pending = kept
}

// ReplaceChain atomically replaces the chain. Callers must have already
// confirmed IsChainValid(newChain) (spec.md §4.2).
func (s *Store) ReplaceChain(newChain []*ledgertypes.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = newChain
}

// ReplacePending atomically replaces the entire pending pool, used by
// /synchronize to adopt a peer's pending list wholesale rather than
// merge it with the local pool (spec.md §6).
func (s *Store) ReplacePending(pending []*ledgertypes.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = pending
}

// MiningStatus returns a snapshot of the current mining status.
func (s *Store) MiningStatus() MiningStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mining
}

// SetMiningStatus overwrites the mining status.
func (s *Store) SetMiningStatus(status MiningStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mining = status
}

// MarkFailed records the first-observed-failure time for a peer, if one
// isn't already recorded.
func (s *Store) MarkFailed(peerURL string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.failedNodes[peerURL]; !exists {
		s.failedNodes[peerURL] = at
	}
}

// ClearFailed removes peerURL from the failed-node map.
func (s *Store) ClearFailed(peerURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failedNodes, peerURL)
}

// IsFailed reports whether peerURL is currently recorded as failed.
func (s *Store) IsFailed(peerURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.failedNodes[peerURL]
	return exists
}

// IsChainValid checks B1, B2, B3 for every block at index >= 1, and T1
// for every transaction in every block (spec.md §4.2). It returns false
// on the first failure and takes no lock: it operates on a chain slice
// the caller already owns (e.g. one just reconstructed from a peer),
// not on s.chain.
func (s *Store) IsChainValid(chain []*ledgertypes.Block) bool {
	for i := 1; i < len(chain); i++ {
		current := chain[i]
		previous := chain[i-1]

		if current.Hash != current.ComputeHash() {
			return false
		}
		if current.PreviousHash != previous.Hash {
			return false
		}
		if !current.MeetsDifficulty(s.difficulty) {
			return false
		}
		if !current.VerifyTransactions() {
			return false
		}
	}
	return true
}
