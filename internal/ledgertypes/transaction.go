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

// Package ledgertypes holds the value objects and integrity primitives of
// the ledger: Transaction, Block, CRC32 checksumming, canonical block
// encoding, and proof-of-work.
package ledgertypes

import (
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ledgernet/ledgernode/pkg/ledgererr"
)

// Transaction types recognized by the ledger (spec.md §3).
const (
	TypeGeneric = "generic"
	TypeImage   = "image"
)

// Transaction is the ledger's unit of admitted data. Data is always held
// as the canonical byte payload: for TypeImage it is the raw image
// bytes, for TypeGeneric it is the UTF-8 encoding of the submitted
// string. CRC is always CRC32(Data), 8 lowercase hex digits (T1).
type Transaction struct {
	Type          string
	Data          []byte
	Timestamp     float64
	CRC           string
	Confirmations map[string]struct{}
}

// New constructs a transaction from payload bytes, computing its CRC and
// timestamp immediately, matching Transaction.__init__ in the python
// original.
func New(data []byte, txType string) *Transaction {
	return &Transaction{
		Type:          txType,
		Data:          data,
		Timestamp:     nowSeconds(),
		CRC:           ComputeCRC(data),
		Confirmations: make(map[string]struct{}),
	}
}

// NewGeneric is a convenience constructor for generic string payloads.
func NewGeneric(data string) *Transaction {
	return New([]byte(data), TypeGeneric)
}

// ComputeCRC returns the 8-lowercase-hex-digit IEEE CRC32 of data.
func ComputeCRC(data []byte) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// VerifyCRC reports whether t.CRC still matches CRC32(t.Data) — T1.
func (t *Transaction) VerifyCRC() bool {
	return t.CRC == ComputeCRC(t.Data)
}

// AddConfirmation records that peerURL has confirmed this transaction.
func (t *Transaction) AddConfirmation(peerURL string) {
	if t.Confirmations == nil {
		t.Confirmations = make(map[string]struct{})
	}
	t.Confirmations[peerURL] = struct{}{}
}

// ConfirmationCount returns |t.confirmations|.
func (t *Transaction) ConfirmationCount() int {
	return len(t.Confirmations)
}

// Clone returns a deep copy, used when freezing a pending transaction
// into a block so later mutation of the pool's copy cannot retroactively
// change a sealed block (Ledger state ownership, spec.md §3).
func (t *Transaction) Clone() *Transaction {
	data := make([]byte, len(t.Data))
	copy(data, t.Data)
	confirmations := make(map[string]struct{}, len(t.Confirmations))
	for k := range t.Confirmations {
		confirmations[k] = struct{}{}
	}
	return &Transaction{
		Type:          t.Type,
		Data:          data,
		Timestamp:     t.Timestamp,
		CRC:           t.CRC,
		Confirmations: confirmations,
	}
}

// TransactionWire is the JSON wire form of a transaction (spec.md §6):
// {type, data, timestamp, crc, confirmations}. Data is base64 for image
// transactions, a plain string for generic ones.
type TransactionWire struct {
	Type          string   `json:"type"`
	Data          any      `json:"data"`
	Timestamp     float64  `json:"timestamp"`
	CRC           string   `json:"crc"`
	Confirmations []string `json:"confirmations"`
}

// ToWire converts t to its JSON wire form.
func (t *Transaction) ToWire() TransactionWire {
	confirmations := make([]string, 0, len(t.Confirmations))
	for url := range t.Confirmations {
		confirmations = append(confirmations, url)
	}
	sort.Strings(confirmations)

	var data any
	if t.Type == TypeImage {
		data = base64.StdEncoding.EncodeToString(t.Data)
	} else {
		data = string(t.Data)
	}

	return TransactionWire{
		Type:          t.Type,
		Data:          data,
		Timestamp:     t.Timestamp,
		CRC:           t.CRC,
		Confirmations: confirmations,
	}
}

// CanonicalMap returns the map form fed into json.Marshal for block
// hashing. encoding/json sorts map keys lexicographically, which is
// exactly the canonical, sorted-key encoding spec.md §4.1 requires — no
// third-party JSON library changes that behavior, so this stays stdlib
// (see DESIGN.md).
func (t *Transaction) CanonicalMap() map[string]any {
	w := t.ToWire()
	return map[string]any{
		"type":          w.Type,
		"data":          w.Data,
		"timestamp":     w.Timestamp,
		"crc":           w.CRC,
		"confirmations": w.Confirmations,
	}
}

// TransactionFromWire reconstructs a Transaction from its wire form,
// exactly as received — CRC and confirmations are taken as given, not
// recomputed, so callers can still detect a mismatch by calling
// VerifyCRC.
func TransactionFromWire(w TransactionWire) (*Transaction, error) {
	var data []byte
	switch w.Type {
	case TypeImage:
		s, ok := w.Data.(string)
		if !ok {
			return nil, errors.Wrap(ledgererr.ErrCRCInvalid, "image transaction data must be base64 string")
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Wrap(ledgererr.ErrCRCInvalid, "image transaction data is not valid base64")
		}
		data = decoded
	default:
		s, ok := w.Data.(string)
		if !ok {
			s = fmt.Sprintf("%v", w.Data)
		}
		data = []byte(s)
	}

	confirmations := make(map[string]struct{}, len(w.Confirmations))
	for _, url := range w.Confirmations {
		confirmations[url] = struct{}{}
	}

	return &Transaction{
		Type:          w.Type,
		Data:          data,
		Timestamp:     w.Timestamp,
		CRC:           w.CRC,
		Confirmations: confirmations,
	}, nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
