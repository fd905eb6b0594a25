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
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/julienschmidt/httprouter"

	"github.com/ledgernet/ledgernode/internal/ledgertypes"
	"github.com/ledgernet/ledgernode/pkg/ledgererr"
)

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	chain := s.store.Chain()
	wire := make([]ledgertypes.BlockWire, len(chain))
	for i, b := range chain {
		wire[i] = b.ToWire(true)
	}
	writeJSON(w, http.StatusOK, map[string]any{"chain": wire, "length": len(wire)})
	return nil
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) error {
	index, err := strconv.Atoi(ps.ByName("index"))
	if err != nil {
		return errors.Wrapf(ledgererr.ErrNotFound, "invalid block index %q", ps.ByName("index"))
	}

	block, err := s.store.BlockAt(index)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Block not found")
		return nil
	}
	writeJSON(w, http.StatusOK, block.ToWire(false))
	return nil
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	if len(s.store.Pending()) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No pending transactions to mine",
			"status":  "idle",
		})
		return nil
	}

	if s.store.MiningStatus().IsMining {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success":  false,
			"message":  "Mining already in progress",
			"progress": s.store.MiningStatus().Progress,
			"status":   "mining",
		})
		return nil
	}

	result := s.engine.MineBlock(r.Context())
	if !result.Success {
		status := http.StatusBadRequest
		if result.Status == "waiting_for_confirmations" {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{
			"success": false,
			"message": result.Message,
			"status":  result.Status,
		})
		return nil
	}

	s.engine.NotifyPeersToResolve(r.Context())

	replaced := s.engine.ResolveConflicts(r.Context())
	chainStatus := "authoritative"
	if replaced {
		chainStatus = "replaced"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": result.Message,
		"status":  "completed",
		"block": map[string]any{
			"index":             result.BlockIndex,
			"hash":              result.BlockHash,
			"transaction_count": result.TransactionCount,
		},
		"chain_status": chainStatus,
	})
	return nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	replaced := s.engine.ResolveConflicts(r.Context())

	chain := s.store.Chain()
	wire := make([]ledgertypes.BlockWire, len(chain))
	for i, b := range chain {
		wire[i] = b.ToWire(false)
	}

	message := "Chain is authoritative"
	if replaced {
		message = "Chain was replaced"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"chain":   wire,
		"length":  len(wire),
	})
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"node_id": s.cfg.NodeID,
	})
	return nil
}
