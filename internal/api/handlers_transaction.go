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
	"fmt"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/julienschmidt/httprouter"

	"github.com/ledgernet/ledgernode/internal/ledgertypes"
)

// newTransactionRequest is the body of POST /transaction/new:
// {data, type?}.
type newTransactionRequest struct {
	Data any    `json:"data"`
	Type string `json:"type"`
}

func (s *Server) handleNewTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var req newTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		return errors.Wrap(err, "decode transaction request")
	}
	if req.Type == "" {
		req.Type = ledgertypes.TypeGeneric
	}

	var data []byte
	if s, ok := req.Data.(string); ok {
		data = []byte(s)
	} else {
		data = []byte(fmt.Sprintf("%v", req.Data))
	}

	tx := ledgertypes.New(data, req.Type)
	if err := s.engine.SubmitTransaction(r.Context(), tx); err != nil {
		return err
	}

	writeMessage(w, http.StatusCreated, "Transaction added successfully!")
	return nil
}

func (s *Server) handleVerifyTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var wire ledgertypes.TransactionWire
	if err := decodeJSON(r, &wire); err != nil {
		return errors.Wrap(err, "decode transaction")
	}

	tx, err := ledgertypes.TransactionFromWire(wire)
	if err != nil {
		return err
	}

	if !s.engine.VerifyTransactionFromPeer(tx) {
		writeMessage(w, http.StatusBadRequest, "Transaction verification failed")
		return nil
	}
	writeMessage(w, http.StatusOK, "Transaction verified")
	return nil
}

func (s *Server) handleVerifyMinedBlock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var wire ledgertypes.BlockWire
	if err := decodeJSON(r, &wire); err != nil {
		return errors.Wrap(err, "decode block")
	}

	block, err := ledgertypes.BlockFromWire(wire)
	if err != nil {
		return err
	}

	if !s.engine.VerifyMinedBlockFromPeer(block) {
		writeMessage(w, http.StatusBadRequest, "Block verification failed")
		return nil
	}
	writeMessage(w, http.StatusOK, "Block verified")
	return nil
}

func (s *Server) handleProcessImage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No image file provided"})
		return nil
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return errors.Wrap(err, "read uploaded image")
	}

	tx := ledgertypes.New(data, ledgertypes.TypeImage)
	if err := s.engine.SubmitTransaction(r.Context(), tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return nil
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Image successfully stored in blockchain",
		"details": map[string]any{
			"crc": tx.CRC,
		},
	})
	return nil
}

