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

package healing

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ledgernet/ledgernode/internal/ledgertypes"
)

// TriggerHashVerification runs one hash-verification pass immediately,
// independent of the periodic loop (spec.md §6's /verify_hashes).
func (s *Supervisor) TriggerHashVerification(ctx context.Context) {
	s.verifyHashes(ctx)
}

// verifyHashes implements the hash-verification loop (spec.md §4.6):
// for each block index, collect that block's hash from every peer, and
// if a single hash value achieves a strict majority among responders,
// differs from the local hash, and satisfies B2 (where applicable),
// overwrite the local hash with it — gated by open question (c)'s
// mitigation: the overwrite is committed only if the chain with it in
// place still passes IsChainValid.
func (s *Supervisor) verifyHashes(ctx context.Context) {
	peers := s.cfg.Peers
	if len(peers) == 0 {
		return
	}
	threshold := len(peers) / 2
	difficulty := s.store.Difficulty()
	chain := s.store.Chain()

	for i, block := range chain {
		counts := s.collectPeerBlocks(ctx, peers, i, func(remote *ledgertypes.Block) string {
			return remote.Hash
		})

		majorityHash, ok := strictMajority(counts, threshold)
		if !ok || majorityHash == block.Hash {
			continue
		}
		if i > 0 && !hashMeetsDifficulty(majorityHash, difficulty) {
			continue
		}

		if s.applyAndRevalidate(chain, i, func(b *ledgertypes.Block) { b.Hash = majorityHash }) {
			s.log.Info("hash verification repaired block", "index", i, "hash", majorityHash)
		} else {
			s.log.Warn("majority hash would break chain validity, skipping", "index", i)
		}
	}
}

// verifyData implements the data-verification loop (spec.md §4.6): for
// each transaction position, collect the payload from every peer, and
// if a single payload achieves a strict majority and the peer-reported
// CRC for it verifies, replace the local transaction's data and CRC
// with the consensus values — subject to the same chain-validity gate as
// verifyHashes.
func (s *Supervisor) verifyData(ctx context.Context) {
	peers := s.cfg.Peers
	if len(peers) == 0 {
		return
	}
	threshold := len(peers) / 2
	chain := s.store.Chain()

	for bi, block := range chain {
		for ti, tx := range block.Transactions {
			representatives := make(map[string]*ledgertypes.Transaction)
			counts := s.collectPeerBlocks(ctx, peers, bi, func(remote *ledgertypes.Block) string {
				if ti >= len(remote.Transactions) {
					return ""
				}
				remoteTx := remote.Transactions[ti]
				key := string(remoteTx.Data)
				representatives[key] = remoteTx
				return key
			})
			delete(counts, "")

			majorityKey, ok := strictMajority(counts, threshold)
			if !ok || majorityKey == string(tx.Data) {
				continue
			}

			representative := representatives[majorityKey]
			if !representative.VerifyCRC() {
				continue
			}

			if s.applyAndRevalidateTx(chain, bi, ti, representative.Data, representative.CRC) {
				s.log.Info("data verification repaired transaction", "block", bi, "tx", ti)
			} else {
				s.log.Warn("majority payload would break chain validity, skipping", "block", bi, "tx", ti)
			}
		}
	}
}

// collectPeerBlocks fans block[index] requests out across peers
// (bounded by errgroup, no extra concurrency cap beyond len(peers)
// since this set is already small — the cluster size) and tallies
// extract(remoteBlock) values. A peer that errors, or whose extractor
// returns "", contributes nothing.
func (s *Supervisor) collectPeerBlocks(ctx context.Context, peers []string, index int, extract func(*ledgertypes.Block) string) map[string]int {
	counts := make(map[string]int)
	var mu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	for _, peerURL := range peers {
		peerURL := peerURL
		group.Go(func() error {
			remote, err := s.client.FetchBlock(gctx, peerURL, index)
			if err != nil {
				return nil
			}
			key := extract(remote)
			if key == "" {
				return nil
			}
			mu.Lock()
			counts[key]++
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return counts
}

// strictMajority returns the single key whose count exceeds threshold,
// if one exists. At most one key can satisfy a strict majority, so the
// result is unambiguous.
func strictMajority(counts map[string]int, threshold int) (string, bool) {
	for key, count := range counts {
		if count > threshold {
			return key, true
		}
	}
	return "", false
}

func hashMeetsDifficulty(hash string, difficulty int) bool {
	if len(hash) < difficulty {
		return false
	}
	return hash[:difficulty] == strings.Repeat("0", difficulty)
}

// applyAndRevalidate mutates a copy of chain[index] with mutate, checks
// IsChainValid against the mutated chain, and commits to the store only
// if it still holds (spec.md §9 open question (c)).
func (s *Supervisor) applyAndRevalidate(chain []*ledgertypes.Block, index int, mutate func(*ledgertypes.Block)) bool {
	original := *chain[index]
	candidate := original
	mutate(&candidate)

	trial := make([]*ledgertypes.Block, len(chain))
	copy(trial, chain)
	trial[index] = &candidate

	if !s.store.IsChainValid(trial) {
		return false
	}
	if err := s.store.ReplaceBlockAt(index, &candidate); err != nil {
		return false
	}
	chain[index] = &candidate
	return true
}

// applyAndRevalidateTx is applyAndRevalidate specialized for replacing
// one transaction's payload and CRC within a block.
func (s *Supervisor) applyAndRevalidateTx(chain []*ledgertypes.Block, blockIndex, txIndex int, data []byte, crc string) bool {
	return s.applyAndRevalidate(chain, blockIndex, func(b *ledgertypes.Block) {
		txs := make([]*ledgertypes.Transaction, len(b.Transactions))
		copy(txs, b.Transactions)
		updated := *txs[txIndex]
		updated.Data = append([]byte(nil), data...)
		updated.CRC = crc
		txs[txIndex] = &updated
		b.Transactions = txs
	})
}
