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

// Package ledgererr defines the error taxonomy shared by every node
// component, and the mapping from that taxonomy to HTTP status codes.
package ledgererr

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Sentinel errors. Callers should wrap these with errors.Wrap/Wrapf to add
// detail and compare against them with errors.Is.
var (
	// ErrCRCInvalid: a transaction's payload does not match its CRC.
	ErrCRCInvalid = errors.New("crc invalid")

	// ErrChainInvalid: a chain received from a peer failed is_chain_valid.
	ErrChainInvalid = errors.New("chain invalid")

	// ErrQuorumNotReached: admission or mined-block broadcast did not
	// reach the required number of confirmations.
	ErrQuorumNotReached = errors.New("quorum not reached")

	// ErrBlockRejected: a mined block failed difficulty, CRC, or hash
	// verification.
	ErrBlockRejected = errors.New("block rejected")

	// ErrPeerUnreachable: an RPC to a peer timed out or failed to
	// transport. Never fatal to the caller.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrAlreadyMining: /mine was called while a mining call was already
	// in flight on this node.
	ErrAlreadyMining = errors.New("already mining")

	// ErrNotFound: a requested block index is out of range.
	ErrNotFound = errors.New("not found")
)

// StatusFor maps an error from this taxonomy to the HTTP status code
// spec.md §7 assigns it. Unrecognized errors map to 500.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrCRCInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrQuorumNotReached):
		return http.StatusBadRequest
	case errors.Is(err, ErrBlockRejected):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyMining):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrChainInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrPeerUnreachable):
		// Peer-unreachable errors are absorbed at the peer-client
		// boundary and never surface to an HTTP caller directly; this
		// case only exists so StatusFor is total over the taxonomy.
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
