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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgernet/ledgernode/internal/config"
	"github.com/ledgernet/ledgernode/internal/ledger"
	"github.com/ledgernet/ledgernode/internal/ledgertypes"
	"github.com/ledgernet/ledgernode/internal/peerclient"
	"github.com/ledgernet/ledgernode/pkg/xlog"
)

func newEngine(t *testing.T, peers []string, admitQuorum int) (*Engine, *ledger.Store) {
	t.Helper()
	cfg := config.Config{
		NodeID:      "node1",
		Difficulty:  1,
		AdmitQuorum: admitQuorum,
		Peers:       peers,
		SelfURL:     "http://node1:5001",
	}
	store := ledger.New(cfg.Difficulty)
	client := peerclient.New(nil)
	log := xlog.New(io.Discard, -10)
	return New(cfg, store, client, log), store
}

// confirmingPeer fakes a peer's /verify_transaction or
// /verify_mined_block response the way the real internal/api handlers
// do: the verdict is the HTTP status, not a response body field.
func confirmingPeer(t *testing.T, valid bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if valid {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestSubmitTransactionAdmitsWhenQuorumReached(t *testing.T) {
	peerA := confirmingPeer(t, true)
	defer peerA.Close()
	peerB := confirmingPeer(t, true)
	defer peerB.Close()

	e, store := newEngine(t, []string{peerA.URL, peerB.URL}, 2)
	tx := ledgertypes.NewGeneric("payload")

	err := e.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Len(t, store.Pending(), 1)
}

func TestSubmitTransactionRejectsBelowQuorum(t *testing.T) {
	peerA := confirmingPeer(t, false)
	defer peerA.Close()

	e, store := newEngine(t, []string{peerA.URL}, 2)
	tx := ledgertypes.NewGeneric("payload")

	err := e.SubmitTransaction(context.Background(), tx)
	assert.Error(t, err)
	assert.Empty(t, store.Pending())
}

func TestVerifyTransactionFromPeerAdmitsRegardlessOfQuorum(t *testing.T) {
	e, store := newEngine(t, nil, 6)
	tx := ledgertypes.NewGeneric("payload")

	ok := e.VerifyTransactionFromPeer(tx)
	assert.True(t, ok)
	assert.Len(t, store.Pending(), 1)
}

func TestVerifyTransactionFromPeerRejectsTamperedCRC(t *testing.T) {
	e, _ := newEngine(t, nil, 6)
	tx := ledgertypes.NewGeneric("payload")
	tx.Data = []byte("tampered")

	assert.False(t, e.VerifyTransactionFromPeer(tx))
}

func TestMineBlockIdleWithNoPending(t *testing.T) {
	e, _ := newEngine(t, nil, 6)
	result := e.MineBlock(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "idle", result.Status)
}

func TestMineBlockWaitsForConfirmations(t *testing.T) {
	e, store := newEngine(t, nil, 6)
	tx := ledgertypes.NewGeneric("payload")
	require.NoError(t, store.AppendTransaction(tx))

	result := e.MineBlock(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "waiting_for_confirmations", result.Status)
}

func TestMineBlockCommitsWhenConsensusReached(t *testing.T) {
	peer := confirmingPeer(t, true)
	defer peer.Close()

	e, store := newEngine(t, []string{peer.URL}, 2)
	tx := ledgertypes.NewGeneric("payload")
	tx.AddConfirmation(peer.URL) // simulate this tx already reached mine quorum

	require.NoError(t, store.AppendTransaction(tx))

	result := e.MineBlock(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 2, store.Len())
	assert.Empty(t, store.Pending())
}

func TestMineBlockFailsConsensusWhenPeersReject(t *testing.T) {
	peer := confirmingPeer(t, false)
	defer peer.Close()

	e, store := newEngine(t, []string{peer.URL}, 2)
	tx := ledgertypes.NewGeneric("payload")
	tx.AddConfirmation(peer.URL)
	require.NoError(t, store.AppendTransaction(tx))

	result := e.MineBlock(context.Background())
	assert.False(t, result.Success)
	assert.Equal(t, "consensus_failed", result.Status)
	assert.Equal(t, 1, store.Len())
}

func TestVerifyMinedBlockFromPeerAppendsValidBlock(t *testing.T) {
	e, store := newEngine(t, nil, 6)
	genesis := store.Latest()
	block := ledgertypes.NewBlock(1, genesis.Hash, []*ledgertypes.Transaction{ledgertypes.NewGeneric("a")})
	block.Mine(1, nil)

	assert.True(t, e.VerifyMinedBlockFromPeer(block))
	assert.Equal(t, 2, store.Len())
}

func TestVerifyMinedBlockFromPeerRejectsUnminedBlock(t *testing.T) {
	e, store := newEngine(t, nil, 6)
	genesis := store.Latest()
	block := ledgertypes.NewBlock(1, genesis.Hash, []*ledgertypes.Transaction{ledgertypes.NewGeneric("a")})
	// deliberately not mined: difficulty 1 requires hash to start with "0"
	block.Hash = "ffffffff"

	assert.False(t, e.VerifyMinedBlockFromPeer(block))
	assert.Equal(t, 1, store.Len())
}

func TestResolveConflictsAdoptsLongerValidChain(t *testing.T) {
	longerStore := ledger.New(1)
	genesis := longerStore.Latest()
	b1 := ledgertypes.NewBlock(1, genesis.Hash, []*ledgertypes.Transaction{ledgertypes.NewGeneric("a")})
	b1.Mine(1, nil)
	longerStore.ReplaceChain([]*ledgertypes.Block{genesis, b1})

	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain := longerStore.Chain()
		wire := make([]ledgertypes.BlockWire, len(chain))
		for i, b := range chain {
			wire[i] = b.ToWire(false)
		}
		json.NewEncoder(w).Encode(map[string]any{"chain": wire, "length": len(wire)})
	}))
	defer peer.Close()

	e, store := newEngine(t, []string{peer.URL}, 6)
	replaced := e.ResolveConflicts(context.Background())

	assert.True(t, replaced)
	assert.Equal(t, 2, store.Len())
}

func TestResolveConflictsKeepsShorterChainAuthoritative(t *testing.T) {
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		genesis := ledgertypes.NewGenesisBlock()
		json.NewEncoder(w).Encode(map[string]any{
			"chain":  []ledgertypes.BlockWire{genesis.ToWire(false)},
			"length": 1,
		})
	}))
	defer peer.Close()

	e, store := newEngine(t, []string{peer.URL}, 6)
	replaced := e.ResolveConflicts(context.Background())

	assert.False(t, replaced)
	assert.Equal(t, 1, store.Len())
}
