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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// GenesisPreviousHash is the literal previous_hash of block 0 (spec.md §3).
const GenesisPreviousHash = "0"

// GenesisPayload is the fixed payload of the genesis block's sole
// transaction.
const GenesisPayload = "Genesis Block"

// Block is the ledger's unit of commitment. Hash is always the SHA-256
// hex digest of CanonicalEncoding(); callers that mutate a Block (e.g.
// self-healing repair) are responsible for recomputing or explicitly
// overwriting Hash afterward — Block itself never recomputes silently,
// so reconstruction from a peer can hold a received hash verbatim
// (spec.md §4.5).
type Block struct {
	Index        int
	PreviousHash string
	Timestamp    float64
	Transactions []*Transaction
	Nonce        uint64
	Hash         string
}

// NewGenesisBlock builds block 0: previous_hash "0", a single generic
// transaction carrying GenesisPayload, no proof-of-work required (B2
// does not apply to index 0).
func NewGenesisBlock() *Block {
	b := &Block{
		Index:        0,
		PreviousHash: GenesisPreviousHash,
		Timestamp:    nowSeconds(),
		Transactions: []*Transaction{NewGeneric(GenesisPayload)},
		Nonce:        0,
	}
	b.Hash = b.ComputeHash()
	return b
}

// NewBlock builds an unmined block ready for proof-of-work: index,
// previous_hash, and a frozen snapshot of the given transactions.
func NewBlock(index int, previousHash string, txs []*Transaction) *Block {
	frozen := make([]*Transaction, len(txs))
	for i, t := range txs {
		frozen[i] = t.Clone()
	}
	b := &Block{
		Index:        index,
		PreviousHash: previousHash,
		Timestamp:    nowSeconds(),
		Transactions: frozen,
		Nonce:        0,
	}
	b.Hash = b.ComputeHash()
	return b
}

// CanonicalEncoding returns the exact byte sequence SHA-256 is computed
// over: a JSON object with lexicographically sorted keys, each
// transaction in its wire form (spec.md §4.1). encoding/json sorts the
// keys of a map[string]any by construction, so no third-party JSON
// library is needed here (see DESIGN.md).
func (b *Block) CanonicalEncoding() []byte {
	txMaps := make([]map[string]any, len(b.Transactions))
	for i, t := range b.Transactions {
		txMaps[i] = t.CanonicalMap()
	}

	m := map[string]any{
		"index":         b.Index,
		"previous_hash": b.PreviousHash,
		"transactions":  txMaps,
		"timestamp":     b.Timestamp,
		"nonce":         b.Nonce,
	}

	// json.Marshal errors only on unsupported types (channels, funcs,
	// cyclic structures), none of which appear in this map.
	encoded, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return encoded
}

// ComputeHash returns the hex SHA-256 digest of CanonicalEncoding() —
// invariant B1.
func (b *Block) ComputeHash() string {
	sum := sha256.Sum256(b.CanonicalEncoding())
	return hex.EncodeToString(sum[:])
}

// MeetsDifficulty reports whether Hash begins with `difficulty` zero hex
// characters (invariant B2). Genesis (index 0) is exempt per spec.md §3.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	if b.Index == 0 {
		return true
	}
	if len(b.Hash) < difficulty {
		return false
	}
	return b.Hash[:difficulty] == strings.Repeat("0", difficulty)
}

// Mine performs the proof-of-work search of spec.md §4.1: starting from
// nonce 0, increment and recompute the hash until MeetsDifficulty holds.
// Single-threaded, terminates probabilistically; acceptable for the low
// difficulties (<=4) this ledger runs at. onIteration, if non-nil, is
// called after every 1000th iteration with the iteration count, nonce and
// hash; the mining progress percentage is ledger-level state set by the
// caller, not by Mine.
func (b *Block) Mine(difficulty int, onIteration func(iterations int, nonce uint64, hash string)) {
	iterations := 0
	for !b.MeetsDifficulty(difficulty) {
		b.Nonce++
		b.Hash = b.ComputeHash()
		iterations++
		if onIteration != nil && iterations%1000 == 0 {
			onIteration(iterations, b.Nonce, b.Hash)
		}
	}
}

// VerifyTransactions reports whether every transaction in the block
// satisfies T1 (invariant B4).
func (b *Block) VerifyTransactions() bool {
	for _, t := range b.Transactions {
		if !t.VerifyCRC() {
			return false
		}
	}
	return true
}

// BlockWire is the JSON wire form of a block (spec.md §6):
// {index, previous_hash, timestamp, transactions, hash, nonce}.
type BlockWire struct {
	Index         int               `json:"index"`
	PreviousHash  string            `json:"previous_hash"`
	Timestamp     float64           `json:"timestamp"`
	Transactions  []TransactionWire `json:"transactions"`
	Hash          string            `json:"hash"`
	Nonce         uint64            `json:"nonce"`
	Confirmations int               `json:"confirmations,omitempty"`
}

// ToWire converts b to its JSON wire form. includeConfirmations mirrors
// the original /chain handler, which additionally reports the
// confirmation count of each block's first transaction; other endpoints
// (e.g. /block/<index>, /verify_mined_block) omit it.
func (b *Block) ToWire(includeConfirmations bool) BlockWire {
	txs := make([]TransactionWire, len(b.Transactions))
	for i, t := range b.Transactions {
		txs[i] = t.ToWire()
	}
	w := BlockWire{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		Transactions: txs,
		Hash:         b.Hash,
		Nonce:        b.Nonce,
	}
	if includeConfirmations && len(b.Transactions) > 0 {
		w.Confirmations = b.Transactions[0].ConfirmationCount()
	}
	return w
}

// BlockFromWire reconstructs a Block from its wire form, preserving Hash
// and Nonce exactly as received (spec.md §4.5) — validation recomputes
// everything fresh via ComputeHash/MeetsDifficulty/VerifyTransactions.
func BlockFromWire(w BlockWire) (*Block, error) {
	txs := make([]*Transaction, len(w.Transactions))
	for i, tw := range w.Transactions {
		t, err := TransactionFromWire(tw)
		if err != nil {
			return nil, err
		}
		txs[i] = t
	}
	return &Block{
		Index:        w.Index,
		PreviousHash: w.PreviousHash,
		Timestamp:    w.Timestamp,
		Transactions: txs,
		Nonce:        w.Nonce,
		Hash:         w.Hash,
	}, nil
}
