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

package ledgertypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBlockIdentity(t *testing.T) {
	b := NewGenesisBlock()

	assert.Equal(t, 0, b.Index)
	assert.Equal(t, GenesisPreviousHash, b.PreviousHash)
	require.Len(t, b.Transactions, 1)
	assert.Equal(t, GenesisPayload, string(b.Transactions[0].Data))
	assert.True(t, b.MeetsDifficulty(4), "genesis is exempt from difficulty")
	assert.Equal(t, b.ComputeHash(), b.Hash)
}

func TestHashRecomputationIsDeterministic(t *testing.T) {
	b := NewBlock(1, "deadbeef", []*Transaction{NewGeneric("x")})
	h1 := b.ComputeHash()
	h2 := b.ComputeHash()
	assert.Equal(t, h1, h2)
}

func TestMineProducesHashMeetingDifficulty(t *testing.T) {
	b := NewBlock(1, "deadbeef", []*Transaction{NewGeneric("x")})
	b.Mine(2, nil)

	assert.True(t, strings.HasPrefix(b.Hash, "00"))
	assert.Equal(t, b.ComputeHash(), b.Hash)
	assert.True(t, b.MeetsDifficulty(2))
}

func TestMineProgressCallbackFiresOnlyOnThousandMultiples(t *testing.T) {
	b := NewBlock(1, "deadbeef", []*Transaction{NewGeneric("x")})
	calls := 0
	b.Mine(1, func(iterations int, nonce uint64, hash string) {
		calls++
		assert.Equal(t, 0, iterations%1000)
	})
	// difficulty 1 resolves in well under 1000 iterations almost always,
	// so calls is usually 0; this just asserts it never panics or
	// fires on a non-multiple-of-1000 iteration count.
	assert.True(t, calls >= 0)
}

func TestCanonicalEncodingRoundTripsHash(t *testing.T) {
	// P7: reconstructing a block from its own wire form and recomputing
	// the hash must reproduce the original hash.
	b := NewBlock(1, "deadbeef", []*Transaction{NewGeneric("x")})
	b.Mine(1, nil)

	wire := b.ToWire(false)
	reconstructed, err := BlockFromWire(wire)
	require.NoError(t, err)

	assert.Equal(t, b.Hash, reconstructed.ComputeHash())
}

func TestToWireIncludesConfirmationsOnlyWhenRequested(t *testing.T) {
	tx := NewGeneric("x")
	tx.AddConfirmation("http://node2:5002")
	b := NewBlock(1, "deadbeef", []*Transaction{tx})

	withConfirmations := b.ToWire(true)
	assert.Equal(t, 1, withConfirmations.Confirmations)

	without := b.ToWire(false)
	assert.Equal(t, 0, without.Confirmations)
}

func TestVerifyTransactionsDetectsTamperedPayload(t *testing.T) {
	tx := NewGeneric("x")
	b := NewBlock(1, "deadbeef", []*Transaction{tx})
	assert.True(t, b.VerifyTransactions())

	b.Transactions[0].Data = []byte("corrupted")
	assert.False(t, b.VerifyTransactions())
}
