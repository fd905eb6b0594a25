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

// Package healing runs the four background activities that keep a
// node's ledger converged with its peers without a leader: initial
// sync, peer health checking, and periodic majority-vote verification
// of block hashes and transaction payloads (spec.md §4.6).
package healing

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledgernet/ledgernode/internal/config"
	"github.com/ledgernet/ledgernode/internal/ledger"
	"github.com/ledgernet/ledgernode/internal/ledgertypes"
	"github.com/ledgernet/ledgernode/internal/peerclient"
	"github.com/ledgernet/ledgernode/pkg/xlog"
)

const (
	initialSyncRetries = 3
	initialSyncDelay   = 5 * time.Second
	healthCheckPeriod  = 30 * time.Second
	hashVerifyPeriod   = 30 * time.Second
	dataVerifyPeriod   = 30 * time.Second

	// structuralRepairAgreement is the number of peers that must agree
	// byte-for-byte on a block payload before a structurally corrupted
	// block (B1/B3/T1 failure) is replaced (spec.md §4.6).
	structuralRepairAgreement = 6
)

// Supervisor owns the four background activities. It never constructs
// its own peer list or difficulty — both come from cfg and store, so a
// single Supervisor always reflects the node's live configuration.
type Supervisor struct {
	cfg    config.Config
	store  *ledger.Store
	client *peerclient.Client
	log    xlog.Logger
}

// New builds a Supervisor.
func New(cfg config.Config, store *ledger.Store, client *peerclient.Client, log xlog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, store: store, client: client, log: log}
}

// Run starts every background activity and blocks until ctx is
// cancelled. Initial sync runs once before the periodic loops start,
// matching the original's constructor-time initial_sync() call
// happening before start_health_check's loop takes over.
func (s *Supervisor) Run(ctx context.Context) {
	s.InitialSync(ctx)

	go s.runLoop(ctx, healthCheckPeriod, s.checkNodesHealth)
	go s.runLoop(ctx, hashVerifyPeriod, s.verifyHashes)
	go s.runLoop(ctx, dataVerifyPeriod, s.verifyData)
	<-ctx.Done()
}

func (s *Supervisor) runLoop(ctx context.Context, period time.Duration, activity func(context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		activity(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// InitialSync performs up to initialSyncRetries attempts, initialSyncDelay
// apart, asking every peer for its chain and adopting the longest one
// that passes IsChainValid (spec.md §4.6). trySync reports every attempt
// as successful — including one that finds no longer chain or reaches no
// peer — so the first attempt always ends the loop and InitialSync
// returns true, matching the original's single-pass initial_sync.
func (s *Supervisor) InitialSync(ctx context.Context) bool {
	for attempt := 0; attempt < initialSyncRetries; attempt++ {
		if s.trySync(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(initialSyncDelay):
		}
	}
	s.log.Warn("initial sync failed after maximum retries")
	return false
}

func (s *Supervisor) trySync(ctx context.Context) bool {
	currentLength := s.store.Len()
	maxLength := currentLength
	var longest []*ledgertypes.Block

	for _, peerURL := range s.cfg.Peers {
		chain, err := s.client.FetchChain(ctx, peerURL)
		if err != nil {
			s.log.Warn("could not reach peer during initial sync", "peer", peerURL, "error", err)
			continue
		}
		if len(chain) > maxLength && s.store.IsChainValid(chain) {
			longest = chain
			maxLength = len(chain)
		}
	}

	if longest != nil {
		s.store.ReplaceChain(longest)
		s.log.Info("initial sync successful", "length", maxLength)
		s.VerifyChainIntegrity(ctx)
	} else {
		s.log.Info("no longer valid chain found, keeping current chain")
	}
	return true
}

// checkNodesHealth probes every peer's /health endpoint (spec.md §4.6).
func (s *Supervisor) checkNodesHealth(ctx context.Context) {
	for _, peerURL := range s.cfg.Peers {
		if s.client.Healthy(ctx, peerURL) {
			if s.store.IsFailed(peerURL) {
				s.log.Info("peer recovered, synchronizing", "peer", peerURL)
				if s.SynchronizeNode(ctx, peerURL) {
					s.store.ClearFailed(peerURL)
				} else {
					s.log.Warn("failed to synchronize with recovered peer", "peer", peerURL)
				}
			} else {
				s.SynchronizeNode(ctx, peerURL)
			}
		} else {
			s.handleNodeFailure(ctx, peerURL)
		}
	}
}

func (s *Supervisor) handleNodeFailure(ctx context.Context, peerURL string) {
	if s.store.IsFailed(peerURL) {
		return
	}
	s.log.Warn("peer is down, marking as failed", "peer", peerURL)
	s.store.MarkFailed(peerURL, time.Now())
	s.SynchronizeNode(ctx, peerURL)
}

// SynchronizeNode fetches peerURL's chain and adopts it if strictly
// longer than the local chain, then runs a local integrity pass
// (spec.md §4.6 synchronize_node). Unlike InitialSync it does not gate
// the adoption on IsChainValid up front — that mirrors the original,
// which relies on the subsequent integrity pass to catch and repair any
// resulting corruption rather than rejecting the sync outright.
func (s *Supervisor) SynchronizeNode(ctx context.Context, peerURL string) bool {
	chain, err := s.client.FetchChain(ctx, peerURL)
	if err != nil {
		s.log.Error("synchronization failed", "peer", peerURL, "error", err)
		return false
	}

	if len(chain) <= s.store.Len() {
		return false
	}

	s.store.ReplaceChain(chain)
	s.VerifyChainIntegrity(ctx)
	s.log.Info("synchronized with peer", "peer", peerURL, "length", len(chain))
	return true
}

// VerifyChainIntegrity scans the local chain for blocks that fail B1,
// B3, or T1 and hands the offending indices to repairCorruptedBlocks
// (spec.md §4.6).
func (s *Supervisor) VerifyChainIntegrity(ctx context.Context) {
	chain := s.store.Chain()
	var corrupted []int

	for i := 1; i < len(chain); i++ {
		current := chain[i]
		previous := chain[i-1]

		if current.PreviousHash != previous.Hash {
			corrupted = append(corrupted, i)
			continue
		}
		if current.Hash != current.ComputeHash() {
			corrupted = append(corrupted, i)
			continue
		}
		if !current.VerifyTransactions() {
			corrupted = append(corrupted, i)
		}
	}

	if len(corrupted) > 0 {
		s.log.Error("found corrupted blocks", "indices", corrupted)
		s.repairCorruptedBlocks(ctx, corrupted)
	}
}

// repairCorruptedBlocks fetches block[index] from every peer for each
// corrupted index and replaces the local copy once at least
// structuralRepairAgreement peers agree byte-for-byte on a payload that
// also verifies in isolation (B2 and all T1) — spec.md §4.6.
func (s *Supervisor) repairCorruptedBlocks(ctx context.Context, indices []int) {
	difficulty := s.store.Difficulty()

	for _, index := range indices {
		type candidate struct {
			block *ledgertypes.Block
			hash  string
		}
		var mu sync.Mutex
		agreement := make(map[string]int)
		var best *candidate

		group, gctx := errgroup.WithContext(ctx)
		for _, peerURL := range s.cfg.Peers {
			peerURL := peerURL
			group.Go(func() error {
				block, err := s.client.FetchBlock(gctx, peerURL, index)
				if err != nil {
					return nil // unreachable peers are simply not counted
				}
				if !blockVerifiesInIsolation(block, difficulty) {
					return nil
				}

				payload, err := json.Marshal(block.ToWire(false))
				if err != nil {
					return nil
				}
				key := string(payload)

				mu.Lock()
				defer mu.Unlock()
				agreement[key]++
				if agreement[key] >= structuralRepairAgreement && best == nil {
					best = &candidate{block: block, hash: block.Hash}
				}
				return nil
			})
		}
		_ = group.Wait()

		if best != nil {
			if err := s.store.ReplaceBlockAt(index, best.block); err != nil {
				s.log.Error("failed to repair block", "index", index, "error", err)
				continue
			}
			s.log.Info("repaired corrupted block", "index", index, "hash", best.block.Hash)
		}
	}
}

// blockVerifiesInIsolation checks B2 (except for genesis) and B4,
// mirroring verify_block's rules for a block considered on its own
// merits, without reference to this node's chain (spec.md §4.6).
func blockVerifiesInIsolation(b *ledgertypes.Block, difficulty int) bool {
	if b.Index == 0 {
		return b.PreviousHash == ledgertypes.GenesisPreviousHash && b.VerifyTransactions()
	}
	return b.MeetsDifficulty(difficulty) && b.VerifyTransactions()
}
