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

package xlog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONHandlerEmitsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo)

	log.With("node_id", "node1").Info("mined block", "index", 1, "hash", "00abc")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "mined block", decoded["msg"])
	assert.Equal(t, "node1", decoded["node_id"])
	assert.Equal(t, float64(1), decoded["index"])
}

func TestNewJSONHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelWarn)

	log.Debug("should not appear")
	log.Info("should not appear either")
	assert.Empty(t, buf.String())

	log.Warn("this shows up")
	assert.Contains(t, buf.String(), "this shows up")
}

func TestTerminalHandlerFormatsLevelAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, slog.LevelDebug)
	l := slog.New(h)

	l.Error("mining failed", "index", 3, "reason", "timeout")

	out := buf.String()
	assert.True(t, strings.Contains(out, "ERROR"))
	assert.True(t, strings.Contains(out, "mining failed"))
	assert.True(t, strings.Contains(out, "index=3"))
	assert.True(t, strings.Contains(out, "reason=timeout"))
}

func TestTerminalHandlerWithAttrsPropagates(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, slog.LevelInfo)
	l := slog.New(h).With("node_id", "node3")

	l.Info("health check", "peer", "http://node2:5002")

	out := buf.String()
	assert.Contains(t, out, "node_id=node3")
	assert.Contains(t, out, "peer=http://node2:5002")
}
