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

// Package api is the node's HTTP surface: one handler per spec.md §6
// route, mounted under BasePath and wrapped in a common
// request-id/logging/error-translation middleware.
package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/ledgernet/ledgernode/internal/config"
	"github.com/ledgernet/ledgernode/internal/healing"
	"github.com/ledgernet/ledgernode/internal/ledger"
	"github.com/ledgernet/ledgernode/internal/node"
	"github.com/ledgernet/ledgernode/pkg/xlog"
)

// BasePath is the route prefix this module's HTTP surface is mounted
// under when composed behind a front door (spec.md §6).
const BasePath = "/blockchain"

// Server groups the dependencies every handler needs.
type Server struct {
	cfg    config.Config
	store  *ledger.Store
	engine *node.Engine
	healer *healing.Supervisor
	log    xlog.Logger
	router *httprouter.Router
}

// New builds a Server and registers every route.
func New(cfg config.Config, store *ledger.Store, engine *node.Engine, healer *healing.Supervisor, log xlog.Logger) *Server {
	s := &Server{cfg: cfg, store: store, engine: engine, healer: healer, log: log, router: httprouter.New()}
	s.routes()
	return s
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.POST(BasePath+"/transaction/new", s.wrap(s.handleNewTransaction))
	s.router.POST(BasePath+"/verify_transaction", s.wrap(s.handleVerifyTransaction))
	s.router.POST(BasePath+"/verify_mined_block", s.wrap(s.handleVerifyMinedBlock))
	s.router.POST(BasePath+"/image/process", s.wrap(s.handleProcessImage))
	s.router.GET(BasePath+"/mine", s.wrap(s.handleMine))
	s.router.GET(BasePath+"/chain", s.wrap(s.handleGetChain))
	s.router.GET(BasePath+"/block/:index", s.wrap(s.handleGetBlock))
	s.router.GET(BasePath+"/nodes/resolve", s.wrap(s.handleResolve))
	s.router.GET(BasePath+"/health", s.wrap(s.handleHealth))
	s.router.POST(BasePath+"/synchronize", s.wrap(s.handleSynchronize))
	s.router.POST(BasePath+"/verify_hashes", s.wrap(s.handleVerifyHashes))
	s.router.POST(BasePath+"/simulate/failure", s.wrap(s.handleSimulateFailure))
}

// handlerFunc is the shape every route handler in this package follows.
// Returning an error lets wrap translate it to the right HTTP status via
// ledgererr.StatusFor, instead of every handler writing its own error
// response.
type handlerFunc func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) error

// wrap attaches a request id, logs entry/exit, and translates a
// returned error into an HTTP status + JSON body.
func (s *Server) wrap(h handlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := uuid.NewString()
		log := s.log.With("request_id", requestID, "path", r.URL.Path)
		log.Info("handling request")

		if err := h(w, r, ps); err != nil {
			writeError(w, err)
			log.Warn("request failed", "error", err)
			return
		}
		log.Info("request completed")
	}
}
