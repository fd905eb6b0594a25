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

// Package config turns environment variables already present in the
// process (loaded by whatever external supervisor started it — loading
// them is explicitly out of this module's scope) into a typed node
// configuration, including the fixed 6-node peer set.
package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// DefaultClusterSize is the fixed number of nodes in the permissioned
	// network, per spec.md §6.
	DefaultClusterSize = 6

	// DefaultDifficulty is the number of leading hex zeros required in a
	// mined block's hash.
	DefaultDifficulty = 2

	// DefaultAdmitQuorum is the reference admission quorum (spec.md §4.4,
	// §9 open question (a)): hard-coded to the full cluster size rather
	// than derived from live peer count. Kept as the documented default
	// rather than "fixed" because scenario 3 of spec.md §8 depends on it.
	DefaultAdmitQuorum = 6

	basePort = 5000
)

// Config is the full set of parameters a node needs to construct its
// ledger, peer client, mining engine, and healing supervisor.
type Config struct {
	NodeID      string
	Port        int
	ClusterSize int
	Difficulty  int
	AdmitQuorum int
	Peers       []string // base URLs of every other node in the cluster
	SelfURL     string
}

// FromEnv reads NODE_ID and PORT from the process environment and
// derives the rest, following the http://node{i}:500{i} convention of
// spec.md §6. NODE_ID defaults to "node1", PORT to 5001, matching the
// teacher-equivalent original's os.getenv(..., 'node1') defaults.
func FromEnv() (Config, error) {
	nodeID := os.Getenv("NODE_ID")
	if nodeID == "" {
		nodeID = "node1"
	}

	portStr := os.Getenv("PORT")
	port := basePort + 1
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PORT %q: %w", portStr, err)
		}
		port = p
	}

	return New(nodeID, port, DefaultClusterSize, DefaultDifficulty, DefaultAdmitQuorum)
}

// New builds a Config directly, deriving peers and self URL from nodeID
// and clusterSize by the same convention FromEnv uses.
func New(nodeID string, port, clusterSize, difficulty, admitQuorum int) (Config, error) {
	index, err := nodeIndex(nodeID)
	if err != nil {
		return Config{}, err
	}
	if index < 1 || index > clusterSize {
		return Config{}, fmt.Errorf("node id %q out of range for cluster size %d", nodeID, clusterSize)
	}

	peers := make([]string, 0, clusterSize-1)
	for i := 1; i <= clusterSize; i++ {
		if i == index {
			continue
		}
		peers = append(peers, nodeURL(i))
	}

	return Config{
		NodeID:      nodeID,
		Port:        port,
		ClusterSize: clusterSize,
		Difficulty:  difficulty,
		AdmitQuorum: admitQuorum,
		Peers:       peers,
		SelfURL:     nodeURL(index),
	}, nil
}

// MineQuorum is the number of confirmations a mined block (and the
// transactions it contains) must gather to be accepted, derived live
// from the current peer count per spec.md §4.4: ceil((|peers|+1)/2).
func (c Config) MineQuorum() int {
	return (len(c.Peers) + 1 + 1) / 2
}

func nodeURL(i int) string {
	return fmt.Sprintf("http://node%d:%d", i, basePort+i)
}

// nodeIndex extracts the numeric suffix of a "node{i}" id.
func nodeIndex(nodeID string) (int, error) {
	var i int
	n, err := fmt.Sscanf(nodeID, "node%d", &i)
	if err != nil || n != 1 {
		return 0, fmt.Errorf("invalid NODE_ID %q, expected form nodeN", nodeID)
	}
	return i, nil
}
