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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgernet/ledgernode/internal/ledgertypes"
)

func TestSynchronizeAdoptsLongerChainInRecoveryMode(t *testing.T) {
	e, store := newEngine(t, nil, 6)
	genesis := store.Latest()
	b1 := ledgertypes.NewBlock(1, genesis.Hash, []*ledgertypes.Transaction{ledgertypes.NewGeneric("a")})
	b1.Mine(1, nil)

	chainWire := []ledgertypes.BlockWire{genesis.ToWire(false), b1.ToWire(false)}
	result, err := e.Synchronize(chainWire, nil)

	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 2, store.Len())
}

func TestSynchronizeRejectsHashMismatch(t *testing.T) {
	e, store := newEngine(t, nil, 6)
	genesis := store.Latest()
	b1 := ledgertypes.NewBlock(1, genesis.Hash, []*ledgertypes.Transaction{ledgertypes.NewGeneric("a")})
	b1.Mine(1, nil)

	wire := b1.ToWire(false)
	wire.Hash = "tampered"
	_, err := e.Synchronize([]ledgertypes.BlockWire{genesis.ToWire(false), wire}, nil)
	assert.Error(t, err)
}

func TestSynchronizeNoOpWhenChainsAlreadyEqual(t *testing.T) {
	e, store := newEngine(t, nil, 6)
	genesis := store.Latest()

	result, err := e.Synchronize([]ledgertypes.BlockWire{genesis.ToWire(false)}, nil)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, "Chains already synchronized", result.Message)
}

func TestSynchronizeFiltersCommittedTransactionsFromPending(t *testing.T) {
	e, store := newEngine(t, nil, 6)
	genesis := store.Latest()
	committedTx := ledgertypes.NewGeneric("in-chain")
	b1 := ledgertypes.NewBlock(1, genesis.Hash, []*ledgertypes.Transaction{committedTx})
	b1.Mine(1, nil)

	stillPendingTx := ledgertypes.NewGeneric("still-pending")
	chainWire := []ledgertypes.BlockWire{genesis.ToWire(false), b1.ToWire(false)}
	pendingWire := []ledgertypes.TransactionWire{committedTx.ToWire(), stillPendingTx.ToWire()}

	_, err := e.Synchronize(chainWire, pendingWire)
	require.NoError(t, err)

	pending := store.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, stillPendingTx.CRC, pending[0].CRC)
}
