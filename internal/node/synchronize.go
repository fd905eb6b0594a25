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

package node

import (
	"github.com/cockroachdb/errors"

	"github.com/ledgernet/ledgernode/internal/ledgertypes"
	"github.com/ledgernet/ledgernode/pkg/ledgererr"
)

// SyncResult reports what Synchronize did.
type SyncResult struct {
	Message string
	Applied bool
}

// Synchronize accepts a full chain and pending-transaction list pushed
// by a peer (spec.md §6's /synchronize): every block is reconstructed
// with its hash and transaction CRCs re-verified against what was
// received, the whole chain is checked with IsChainValid, and the
// result is adopted only if it is strictly longer than the local chain
// or the local chain is still at genesis (recovery mode).
func (e *Engine) Synchronize(chainWire []ledgertypes.BlockWire, pendingWire []ledgertypes.TransactionWire) (SyncResult, error) {
	if len(chainWire) == e.store.Len() && len(chainWire) > 0 {
		local := e.store.Latest()
		if local.Hash == chainWire[len(chainWire)-1].Hash {
			return SyncResult{Message: "Chains already synchronized"}, nil
		}
	}

	newChain := make([]*ledgertypes.Block, len(chainWire))
	for i, bw := range chainWire {
		txs := make([]*ledgertypes.Transaction, len(bw.Transactions))
		for j, tw := range bw.Transactions {
			tx, err := ledgertypes.TransactionFromWire(tw)
			if err != nil {
				return SyncResult{}, errors.Wrapf(err, "block %d: decode transaction %d", i, j)
			}
			if !tx.VerifyCRC() {
				return SyncResult{}, errors.Wrapf(ledgererr.ErrCRCInvalid, "block %d transaction %s", i, tx.CRC)
			}
			txs[j] = tx
		}

		block := &ledgertypes.Block{
			Index:        bw.Index,
			PreviousHash: bw.PreviousHash,
			Timestamp:    bw.Timestamp,
			Transactions: txs,
			Nonce:        bw.Nonce,
		}
		computed := block.ComputeHash()
		if computed != bw.Hash {
			return SyncResult{}, errors.Wrapf(ledgererr.ErrBlockRejected, "hash mismatch for block %d", i)
		}
		block.Hash = computed
		newChain[i] = block
	}

	if !e.store.IsChainValid(newChain) {
		return SyncResult{}, errors.Wrap(ledgererr.ErrChainInvalid, "invalid chain received during synchronization")
	}

	isRecovery := e.store.Len() <= 1
	if len(newChain) <= e.store.Len() && !isRecovery {
		return SyncResult{Message: "Current chain is up to date"}, nil
	}

	e.store.ReplaceChain(newChain)

	committed := make(map[string]struct{})
	for _, b := range newChain {
		for _, tx := range b.Transactions {
			committed[tx.CRC] = struct{}{}
		}
	}

	pending := make([]*ledgertypes.Transaction, 0, len(pendingWire))
	for _, tw := range pendingWire {
		tx, err := ledgertypes.TransactionFromWire(tw)
		if err != nil {
			continue
		}
		if _, already := committed[tx.CRC]; !already {
			pending = append(pending, tx)
		}
	}
	e.store.ReplacePending(pending)

	return SyncResult{Message: "Synchronization successful", Applied: true}, nil
}
