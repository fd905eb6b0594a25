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
	"io"
	"net/http/httptest"
	"testing"

	"github.com/ledgernet/ledgernode/internal/config"
	"github.com/ledgernet/ledgernode/internal/healing"
	"github.com/ledgernet/ledgernode/internal/ledger"
	"github.com/ledgernet/ledgernode/internal/node"
	"github.com/ledgernet/ledgernode/internal/peerclient"
	"github.com/ledgernet/ledgernode/pkg/xlog"
)

// newTestServer builds a Server with the given peers (none by default)
// and a zero admit quorum, so transaction admission succeeds without any
// confirming peer being reachable. Committing a mined block still needs
// MineQuorum() accepting peers.
func newTestServer(t *testing.T, peers ...string) (*Server, *ledger.Store) {
	t.Helper()
	cfg := config.Config{
		NodeID:      "node1",
		Difficulty:  1,
		AdmitQuorum: 0,
		Peers:       peers,
		SelfURL:     "http://node1:5001",
	}
	store := ledger.New(cfg.Difficulty)
	client := peerclient.New(nil)
	log := xlog.New(io.Discard, -10)
	engine := node.New(cfg, store, client, log)
	healer := healing.New(cfg, store, client, log)
	return New(cfg, store, engine, healer, log), store
}

func newTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
