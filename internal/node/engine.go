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

// Package node implements the admission engine, the mining engine, and
// chain conflict resolution — the three operations that mutate a node's
// ledger in response to either a local client request or a peer's RPC
// (spec.md §4.2, §4.4, §4.5).
package node

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/ledgernet/ledgernode/internal/config"
	"github.com/ledgernet/ledgernode/internal/ledger"
	"github.com/ledgernet/ledgernode/internal/ledgertypes"
	"github.com/ledgernet/ledgernode/internal/peerclient"
	"github.com/ledgernet/ledgernode/pkg/ledgererr"
	"github.com/ledgernet/ledgernode/pkg/xlog"
)

// Engine wires a node's configuration, ledger store, and peer client
// together to implement admission, mining, and conflict resolution.
type Engine struct {
	cfg    config.Config
	store  *ledger.Store
	client *peerclient.Client
	log    xlog.Logger
}

// New builds an Engine.
func New(cfg config.Config, store *ledger.Store, client *peerclient.Client, log xlog.Logger) *Engine {
	return &Engine{cfg: cfg, store: store, client: client, log: log}
}

// SubmitTransaction is the origin-node path for a client-submitted
// transaction (spec.md §4.2, §6's /transaction/new): broadcast for
// confirmation, add this node's own URL as a confirmation, then admit to
// the local pending pool only if the confirmations (confirming peers plus
// this node) number at least AdmitQuorum (spec.md §9 open question (a) — this
// quorum is fixed at 6 by default regardless of the live peer count, a
// preserved inconsistency with the mining quorum below, not a bug).
func (e *Engine) SubmitTransaction(ctx context.Context, tx *ledgertypes.Transaction) error {
	e.log.Info("broadcasting transaction", "crc", tx.CRC, "peers", len(e.cfg.Peers))

	confirmations := e.client.BroadcastTransaction(ctx, e.cfg.Peers, tx)
	for _, c := range confirmations {
		if c.Err == nil && c.Valid {
			tx.AddConfirmation(c.PeerURL)
		}
	}
	tx.AddConfirmation(e.cfg.SelfURL)

	if tx.ConfirmationCount() < e.cfg.AdmitQuorum {
		e.log.Warn("transaction rejected by network", "crc", tx.CRC,
			"confirmations", tx.ConfirmationCount(), "required", e.cfg.AdmitQuorum)
		return errors.Wrapf(ledgererr.ErrQuorumNotReached, "transaction %s: %d/%d confirmations",
			tx.CRC, tx.ConfirmationCount(), e.cfg.AdmitQuorum)
	}

	return e.store.AppendTransaction(tx)
}

// VerifyTransactionFromPeer is the receiving-peer path (spec.md §6's
// /verify_transaction): a peer unconditionally admits a CRC-valid
// transaction to its own pending pool, independent of any quorum — only
// the origin node's admission is quorum-gated.
func (e *Engine) VerifyTransactionFromPeer(tx *ledgertypes.Transaction) bool {
	if !tx.VerifyCRC() {
		e.log.Warn("peer transaction failed CRC verification", "crc", tx.CRC)
		return false
	}

	tx.AddConfirmation(e.cfg.SelfURL)
	if err := e.store.AppendTransaction(tx); err != nil {
		e.log.Error("failed to admit verified peer transaction", "error", err)
		return false
	}
	return true
}

// MineResult mirrors the result map of the original's
// mine_pending_transactions (spec.md §6's /mine).
type MineResult struct {
	Success bool
	Message string
	Status  string
	// BlockIndex, BlockHash, TransactionCount are populated only when
	// Success is true.
	BlockIndex       int
	BlockHash        string
	TransactionCount int
}

// MineBlock runs the mining engine: select confirmed transactions,
// assemble and mine a block, broadcast for peer consensus, and commit
// (spec.md §4.4). The store's mutex is held for the duration, which
// serializes mining with every other ledger mutation on this node — see
// ledger.Store's doc comment.
func (e *Engine) MineBlock(ctx context.Context) MineResult {
	difficulty := e.store.Difficulty()
	e.store.Lock()
	defer e.store.Unlock()

	pending := e.store.PendingLocked()
	if len(pending) == 0 {
		return MineResult{Success: false, Message: "No pending transactions to mine", Status: "idle"}
	}

	e.store.SetMiningStatusLocked(ledger.MiningStatus{IsMining: true, Progress: 0})
	defer func() {
		status := e.store.MiningStatusLocked()
		status.IsMining = false
		e.store.SetMiningStatusLocked(status)
	}()

	quorum := e.cfg.MineQuorum()
	valid := make([]*ledgertypes.Transaction, 0, len(pending))
	for _, tx := range pending {
		if tx.ConfirmationCount() >= quorum {
			valid = append(valid, tx)
		}
	}

	if len(valid) == 0 {
		return MineResult{Success: false, Message: "No transactions with sufficient confirmations", Status: "waiting_for_confirmations"}
	}

	chain := e.store.ChainLocked()
	latest := chain[len(chain)-1]
	block := ledgertypes.NewBlock(len(chain), latest.Hash, valid)

	e.store.SetMiningStatusLocked(ledger.MiningStatus{IsMining: true, Progress: 50})
	block.Mine(difficulty, func(iterations int, nonce uint64, hash string) {
		e.log.Debug("mining progress", "block", block.Index, "nonce", nonce, "hash", hash, "iterations", iterations)
	})

	confirmations := e.client.BroadcastMinedBlock(ctx, e.cfg.Peers, block)
	if peerclient.CountValid(confirmations) < quorum {
		e.log.Warn("mined block failed to reach network consensus", "block", block.Index, "required", quorum)
		return MineResult{Success: false, Message: "Failed to get network consensus for mined block", Status: "consensus_failed"}
	}

	e.store.SetMiningStatusLocked(ledger.MiningStatus{IsMining: true, Progress: 75})
	e.store.AppendBlockLocked(block)
	minedCRCs := make(map[string]struct{}, len(valid))
	for _, tx := range valid {
		minedCRCs[tx.CRC] = struct{}{}
	}
	kept := make([]*ledgertypes.Transaction, 0, len(pending))
	for _, tx := range e.store.PendingLocked() {
		if _, mined := minedCRCs[tx.CRC]; !mined {
			kept = append(kept, tx)
		}
	}
	e.store.SetPendingLocked(kept)
	e.store.SetMiningStatusLocked(ledger.MiningStatus{IsMining: true, Progress: 100})

	return MineResult{
		Success:          true,
		Message:          "Block mined and confirmed by network",
		Status:           "completed",
		BlockIndex:       block.Index,
		BlockHash:        block.Hash,
		TransactionCount: len(block.Transactions),
	}
}

// VerifyMinedBlockFromPeer is the receiving-peer path (spec.md §6's
// /verify_mined_block): reconstruct the block exactly as received and
// check B4 plus, for non-genesis blocks, B2 — deliberately NOT B3 (the
// previous-hash link against this node's own tip), matching the
// original's verify_block and preserved per spec.md §9 open question
// (b): an accepted block can temporarily leave the chain invalid until
// the next resolve_conflicts call reconciles it.
func (e *Engine) VerifyMinedBlockFromPeer(b *ledgertypes.Block) bool {
	if b.Index == 0 {
		if b.PreviousHash != ledgertypes.GenesisPreviousHash {
			return false
		}
		return b.VerifyTransactions()
	}

	if !b.MeetsDifficulty(e.store.Difficulty()) {
		return false
	}
	if !b.VerifyTransactions() {
		return false
	}

	e.store.Lock()
	defer e.store.Unlock()
	e.store.AppendBlockLocked(b)
	return true
}

// ResolveConflicts implements the longest-valid-chain consensus rule
// (spec.md §4.5): fetch every peer's chain, adopt the longest one that
// is strictly longer than ours and passes IsChainValid. Returns true if
// the local chain was replaced.
func (e *Engine) ResolveConflicts(ctx context.Context) bool {
	currentLength := e.store.Len()

	var winner []*ledgertypes.Block
	for _, peerURL := range e.cfg.Peers {
		chain, err := e.client.FetchChain(ctx, peerURL)
		if err != nil {
			e.log.Warn("could not fetch chain for conflict resolution", "peer", peerURL, "error", err)
			continue
		}
		if len(chain) > currentLength && e.store.IsChainValid(chain) {
			winner = chain
			currentLength = len(chain)
			e.log.Info("found valid longer chain", "peer", peerURL, "length", len(chain))
		}
	}

	if winner == nil {
		e.log.Info("current chain is authoritative")
		return false
	}

	e.store.ReplaceChain(winner)
	e.log.Info("chain replaced", "new_length", len(winner))
	return true
}

// NotifyPeersToResolve tells every peer to run its own conflict
// resolution (spec.md §4.4 step 7: after a successful mine, the
// original loops over every known node calling its nodes/resolve
// endpoint so the freshly mined block propagates immediately rather
// than waiting on the next health-check cycle). A peer that can't be
// reached is logged and otherwise ignored — propagation to it will
// still happen via the periodic health-check sync.
func (e *Engine) NotifyPeersToResolve(ctx context.Context) {
	for _, peerURL := range e.cfg.Peers {
		if err := e.client.NotifyResolve(ctx, peerURL); err != nil {
			e.log.Warn("could not notify peer to resolve", "peer", peerURL, "error", err)
		}
	}
}
