// Package rpcclient issues Bitcoin JSON-RPC calls against one node endpoint.
// It owns connection handling, basic auth and the per-call timeout; retry
// policy belongs to the caller (here: none, the next scrape tries again).
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Error classes callers dispatch on with errors.Is. Per-target handling is
// the collector's job; the client only classifies.
var (
	// ErrUnreachable covers refused connections, DNS failures and timeouts.
	ErrUnreachable = errors.New("node unreachable")

	// ErrAuthFailed means the node rejected the configured credentials.
	ErrAuthFailed = errors.New("rpc authentication failed")

	// ErrProtocol covers unexpected status codes, undecodable bodies and
	// JSON-RPC level errors.
	ErrProtocol = errors.New("unexpected rpc response")
)

// maxResponseBytes bounds how much of a response body we are willing to
// decode; getpeerinfo on a well-connected node is the largest answer we see.
const maxResponseBytes = 8 << 20

// Client talks to node pods over HTTP using the bitcoind JSON-RPC 1.0 wire
// format. One Client serves every target; the host:port is passed per call.
type Client struct {
	httpClient *http.Client
	username   string
	password   string
}

// New returns a client authenticating with the given basic-auth credentials.
// timeout bounds every individual call.
func New(username, password string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		username:   username,
		password:   password,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call performs one JSON-RPC method call against the addr (host:port) and
// returns the raw result payload. Errors wrap exactly one of the package
// error classes.
func (client *Client) Call(ctx context.Context, addr, method string, params []any) (json.RawMessage, error) {
	payload, marshalErr := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      "exporter",
		Method:  method,
		Params:  params,
	})
	if marshalErr != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, marshalErr)
	}

	endpoint := "http://" + addr

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if requestErr != nil {
		return nil, fmt.Errorf("build %s request: %w", method, requestErr)
	}

	request.Header.Set("Content-Type", "application/json")
	request.SetBasicAuth(client.username, client.password)

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		// Dial refusal, DNS miss, timeout, canceled context: all look the
		// same to the caller, the node was not reachable in time.
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, addr, doErr)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrAuthFailed, method, addr, response.StatusCode)
	case response.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrProtocol, method, addr, response.StatusCode)
	}

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if readErr != nil {
		return nil, fmt.Errorf("%w: %s %s: read body: %v", ErrUnreachable, method, addr, readErr)
	}

	var decoded rpcResponse
	if unmarshalErr := json.Unmarshal(body, &decoded); unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %s %s: decode body: %v", ErrProtocol, method, addr, unmarshalErr)
	}

	if decoded.Error != nil {
		return nil, fmt.Errorf("%w: %s %s: rpc error %d: %s",
			ErrProtocol, method, addr, decoded.Error.Code, decoded.Error.Message)
	}

	if len(decoded.Result) == 0 || bytes.Equal(decoded.Result, []byte("null")) {
		return nil, fmt.Errorf("%w: %s %s: empty result", ErrProtocol, method, addr)
	}

	return decoded.Result, nil
}

// BlockchainInfo is the subset of getblockchaininfo the exporter publishes.
type BlockchainInfo struct {
	Blocks               int64   `json:"blocks"`
	Difficulty           float64 `json:"difficulty"`
	VerificationProgress float64 `json:"verificationprogress"`
}

// BlockchainInfo calls getblockchaininfo on addr.
func (client *Client) BlockchainInfo(ctx context.Context, addr string) (BlockchainInfo, error) {
	raw, callErr := client.Call(ctx, addr, "getblockchaininfo", nil)
	if callErr != nil {
		return BlockchainInfo{}, callErr
	}

	var info BlockchainInfo
	if unmarshalErr := json.Unmarshal(raw, &info); unmarshalErr != nil {
		return BlockchainInfo{}, fmt.Errorf("%w: getblockchaininfo %s: decode result: %v",
			ErrProtocol, addr, unmarshalErr)
	}

	return info, nil
}

// PeerCount calls getpeerinfo on addr and returns the number of peers.
func (client *Client) PeerCount(ctx context.Context, addr string) (int, error) {
	raw, callErr := client.Call(ctx, addr, "getpeerinfo", nil)
	if callErr != nil {
		return 0, callErr
	}

	var peers []json.RawMessage
	if unmarshalErr := json.Unmarshal(raw, &peers); unmarshalErr != nil {
		return 0, fmt.Errorf("%w: getpeerinfo %s: decode result: %v", ErrProtocol, addr, unmarshalErr)
	}

	return len(peers), nil
}

// ConnectionCount calls getnetworkinfo on addr and returns the active
// connection count.
func (client *Client) ConnectionCount(ctx context.Context, addr string) (int, error) {
	raw, callErr := client.Call(ctx, addr, "getnetworkinfo", nil)
	if callErr != nil {
		return 0, callErr
	}

	var info struct {
		Connections int `json:"connections"`
	}
	if unmarshalErr := json.Unmarshal(raw, &info); unmarshalErr != nil {
		return 0, fmt.Errorf("%w: getnetworkinfo %s: decode result: %v", ErrProtocol, addr, unmarshalErr)
	}

	return info.Connections, nil
}
