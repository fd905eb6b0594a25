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

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, BasePath+path, reader)
	rec := newTestRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleNewTransactionAdmitsAndAppearsPending(t *testing.T) {
	s, store := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/transaction/new", map[string]any{"data": "hello", "type": "generic"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, store.Pending(), 1)
}

func TestHandleGetChainReturnsGenesis(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/chain", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Chain  []map[string]any `json:"chain"`
		Length int              `json:"length"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Length)
}

func TestHandleGetBlockOutOfRangeReturns404(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/block/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetBlockReturnsGenesis(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/block/0", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealthReportsNodeID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "node1", body["node_id"])
}

func TestHandleMineIdleWithNoPendingTransactions(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/mine", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "idle", body["status"])
}

func TestHandleMineCommitsAdmittedTransaction(t *testing.T) {
	// A mined block is committed only once MineQuorum() peers accept it,
	// so this node gets one peer that answers 200 to every request. With
	// one peer MineQuorum() is 1: the /transaction/new copy carries the
	// peer's and this node's confirmations, and the /verify_transaction
	// copy (admitted unconditionally) carries this node's own, so both
	// are eligible for mining.
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer peer.Close()
	s, store := newTestServer(t, peer.URL)

	tx := map[string]any{"data": "hello", "type": "generic"}
	crcReq := doRequest(t, s, http.MethodPost, "/transaction/new", tx)
	require.Equal(t, http.StatusCreated, crcReq.Code)
	require.Len(t, store.Pending(), 1)

	wire := store.Pending()[0]
	rec := doRequest(t, s, http.MethodPost, "/verify_transaction", map[string]any{
		"data": string(wire.Data),
		"type": wire.Type,
		"crc":  wire.CRC,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/mine", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, 2, store.Len())
}

func TestHandleSimulateFailureUnknownTypeReturns400(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/simulate/failure", map[string]string{"type": "not_a_real_type"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSimulateFailureDataCorruptionIsANoOpOnGenesisOnlyChain(t *testing.T) {
	s, store := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/simulate/failure", map[string]string{"type": "data_corruption"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.Len())
}

func TestHandleVerifyHashesAcknowledgesWithNoPeers(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/verify_hashes", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSynchronizeNoOpWhenAlreadyEqual(t *testing.T) {
	s, store := newTestServer(t)
	genesis := store.Latest()

	rec := doRequest(t, s, http.MethodPost, "/synchronize", map[string]any{
		"chain":               []any{genesis.ToWire(false)},
		"pending_transactions": []any{},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["applied"])
}

func TestHandleResolveReturnsCurrentChainWhenNoPeers(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/nodes/resolve", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
