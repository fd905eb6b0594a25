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

package peerclient

import (
	"context"
	"sync"

	"github.com/JekaMas/workerpool"

	"github.com/ledgernet/ledgernode/internal/ledgertypes"
)

// BroadcastWorkers bounds the fan-out concurrency of a broadcast round,
// mirroring the original's ThreadPoolExecutor(max_workers=10).
const BroadcastWorkers = 10

// Confirmation is one peer's verdict on a broadcast transaction or
// block.
type Confirmation struct {
	PeerURL string
	Valid   bool
	Err     error
}

// BroadcastTransaction asks every peer in peers to verify tx, fanning
// the calls out over a worker pool of width BroadcastWorkers (spec.md
// §4.2 broadcast_transaction). It blocks until every peer has answered
// or timed out, then returns every peer's confirmation.
func (c *Client) BroadcastTransaction(ctx context.Context, peers []string, tx *ledgertypes.Transaction) []Confirmation {
	return c.broadcast(ctx, peers, func(ctx context.Context, peerURL string) (bool, error) {
		return c.VerifyTransaction(ctx, peerURL, tx)
	})
}

// BroadcastMinedBlock asks every peer in peers to verify a freshly mined
// block, with the same bounded fan-out as BroadcastTransaction (spec.md
// §4.4 broadcast_mined_block).
func (c *Client) BroadcastMinedBlock(ctx context.Context, peers []string, b *ledgertypes.Block) []Confirmation {
	return c.broadcast(ctx, peers, func(ctx context.Context, peerURL string) (bool, error) {
		return c.VerifyMinedBlock(ctx, peerURL, b)
	})
}

func (c *Client) broadcast(ctx context.Context, peers []string, call func(context.Context, string) (bool, error)) []Confirmation {
	pool := workerpool.New(BroadcastWorkers)

	results := make([]Confirmation, len(peers))
	var wg sync.WaitGroup
	wg.Add(len(peers))

	for i, peerURL := range peers {
		i, peerURL := i, peerURL
		pool.Submit(func() {
			defer wg.Done()
			valid, err := call(ctx, peerURL)
			results[i] = Confirmation{PeerURL: peerURL, Valid: valid, Err: err}
		})
	}

	wg.Wait()
	pool.StopWait()
	return results
}

// CountValid returns the number of confirmations with Valid == true and
// Err == nil.
func CountValid(confirmations []Confirmation) int {
	count := 0
	for _, c := range confirmations {
		if c.Err == nil && c.Valid {
			count++
		}
	}
	return count
}
