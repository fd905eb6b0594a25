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

// Package peerclient is the stateless HTTP client other nodes are
// reached through: transaction/block verification calls, chain and
// block fetches, and health probes (spec.md §4.3).
package peerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ledgernet/ledgernode/internal/ledgertypes"
	"github.com/ledgernet/ledgernode/pkg/ledgererr"
)

const (
	// DefaultTimeout bounds any single peer call except chain fetches.
	DefaultTimeout = 5 * time.Second
	// ChainFetchTimeout bounds /chain calls, which carry the full history
	// and can legitimately take longer than a verification round-trip.
	ChainFetchTimeout = 10 * time.Second
)

// Client reaches peer nodes over HTTP. It carries no per-peer state;
// every method takes the target peer's base URL explicitly, matching
// the original's pattern of addressing peers by URL string rather than
// by a held connection (spec.md §4.3).
type Client struct {
	httpClient *http.Client
}

// New builds a Client. httpClient may be nil, in which case a client
// with DefaultTimeout is constructed. That client-level timeout caps
// every call, so a per-call context can shorten a call but not lengthen
// it: on such a client FetchChain is also limited to DefaultTimeout.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{httpClient: httpClient}
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(ledgererr.ErrPeerUnreachable, "POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.Wrapf(ledgererr.ErrPeerUnreachable, "POST %s: status %d", url, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode response from %s", url)
		}
	}
	return nil
}

// postJSONStatus POSTs body to url and returns the response status code,
// discarding the body. Used where a peer's verdict is encoded in the
// HTTP status rather than a response field (spec.md §4.4: confirmation
// is "peer returns HTTP 200", not a JSON body key).
func (c *Client) postJSONStatus(ctx context.Context, url string, body any) (int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(ledgererr.ErrPeerUnreachable, "POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return resp.StatusCode, errors.Wrapf(ledgererr.ErrPeerUnreachable, "POST %s: status %d", url, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(ledgererr.ErrPeerUnreachable, "GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(ledgererr.ErrNotFound, "GET %s", url)
	}
	if resp.StatusCode >= 500 {
		return errors.Wrapf(ledgererr.ErrPeerUnreachable, "GET %s: status %d", url, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode response from %s", url)
		}
	}
	return nil
}

// VerifyTransaction asks peerURL to validate tx's CRC (spec.md §4.2,
// §6's /verify_transaction). A peer's confirmation is its HTTP status,
// not a response body field: 200 is a verdict of valid, any other status
// below 500 a verdict of invalid. A 5xx status or a transport failure is
// returned as ErrPeerUnreachable.
func (c *Client) VerifyTransaction(ctx context.Context, peerURL string, tx *ledgertypes.Transaction) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	status, err := c.postJSONStatus(ctx, peerURL+"/verify_transaction", tx.ToWire())
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// VerifyMinedBlock asks peerURL to validate a freshly mined block
// (spec.md §4.4, §6's /verify_mined_block), again keyed off the HTTP
// status rather than a response body field.
func (c *Client) VerifyMinedBlock(ctx context.Context, peerURL string, b *ledgertypes.Block) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	status, err := c.postJSONStatus(ctx, peerURL+"/verify_mined_block", b.ToWire(false))
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// chainResponse is the wire shape of GET /chain.
type chainResponse struct {
	Chain  []ledgertypes.BlockWire `json:"chain"`
	Length int                     `json:"length"`
}

// FetchChain retrieves peerURL's full chain (spec.md §4.5
// reconstruct_chain / resolve_conflicts).
func (c *Client) FetchChain(ctx context.Context, peerURL string) ([]*ledgertypes.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, ChainFetchTimeout)
	defer cancel()

	var resp chainResponse
	if err := c.getJSON(ctx, peerURL+"/chain", &resp); err != nil {
		return nil, err
	}

	chain := make([]*ledgertypes.Block, len(resp.Chain))
	for i, w := range resp.Chain {
		b, err := ledgertypes.BlockFromWire(w)
		if err != nil {
			return nil, errors.Wrapf(err, "decode block %d from %s", i, peerURL)
		}
		chain[i] = b
	}
	return chain, nil
}

// FetchBlock retrieves a single block by index from peerURL (spec.md
// §6's /block/<index>), used by hash- and data-verification loops so
// they don't have to pull the whole chain to check one block.
func (c *Client) FetchBlock(ctx context.Context, peerURL string, index int) (*ledgertypes.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var w ledgertypes.BlockWire
	if err := c.getJSON(ctx, fmt.Sprintf("%s/block/%d", peerURL, index), &w); err != nil {
		return nil, err
	}
	return ledgertypes.BlockFromWire(w)
}

// healthResponse is the wire shape of GET /health.
type healthResponse struct {
	Status string `json:"status"`
}

// Healthy reports whether peerURL's /health endpoint responds with
// status "healthy" (spec.md §4.6 check_nodes_health). Any transport
// error or non-"healthy" status is treated as unhealthy.
func (c *Client) Healthy(ctx context.Context, peerURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var resp healthResponse
	if err := c.getJSON(ctx, peerURL+"/health", &resp); err != nil {
		return false
	}
	return resp.Status == "healthy"
}

// SubmitTransaction posts tx's wire form to peerURL's /transaction/new,
// where the peer handles it as a new client submission and runs its own
// broadcast and admission for it.
func (c *Client) SubmitTransaction(ctx context.Context, peerURL string, tx *ledgertypes.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return c.postJSON(ctx, peerURL+"/transaction/new", tx.ToWire(), nil)
}

// NotifyResolve asks peerURL to run its own conflict resolution (spec.md
// §4.4 step 7: after a successful mine, notify every peer via
// nodes/resolve so the new block propagates without waiting on the
// health-check loop's periodic sync). The peer's reply is discarded;
// only reachability is of interest here.
func (c *Client) NotifyResolve(ctx context.Context, peerURL string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return c.getJSON(ctx, peerURL+"/nodes/resolve", nil)
}
