package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/getpup/pupsourcing/es"
	"github.com/mr-tron/base58"

	migrator "github.com/getpup/ledger-migrator"
	"github.com/getpup/ledger-migrator/address"
)

// Node error codes the adapter distinguishes.
const (
	CodePreflightFailure = -32002
	CodeNodeUnhealthy    = -32005
)

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Client is a minimal JSON-RPC 2.0 client for a ledger node.
type Client struct {
	endpoint string
	http     *http.Client
	logger   es.Logger
	nextID   atomic.Uint64
}

// NewClient creates a client for endpoint. A nil httpClient uses http.DefaultClient.
func NewClient(endpoint string, httpClient *http.Client, logger es.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient, logger: logger}
}

// Call invokes method and decodes the result into result, which may be nil.
// Node errors are returned as *Error.
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	id := c.nextID.Add(1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug(ctx, "rpc call", "method", method, "id", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("failed to call %s: unexpected HTTP status %s", method, resp.Status)
	}

	var r rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if r.Error != nil {
		return fmt.Errorf("failed to call %s: %w", method, r.Error)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// Account is an account as returned by the node.
type Account struct {
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
	Data     []string `json:"data"`
}

// Bytes decodes the base64 account data.
func (a *Account) Bytes() ([]byte, error) {
	if len(a.Data) == 0 {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(a.Data[0])
}

type keyedAccount struct {
	Pubkey  string  `json:"pubkey"`
	Account Account `json:"account"`
}

type commitmentConfig struct {
	Commitment string `json:"commitment,omitempty"`
}

// ProgramAccountKeys returns the addresses of program accounts whose data starts with
// discriminator. Account data is not transferred.
func (c *Client) ProgramAccountKeys(ctx context.Context, program migrator.Address, discriminator []byte, commitment string) ([]migrator.Address, error) {
	cfg := map[string]any{
		"encoding":   "base64",
		"commitment": commitment,
		"dataSlice":  map[string]int{"offset": 0, "length": 0},
		"filters": []any{
			map[string]any{"memcmp": map[string]any{"offset": 0, "bytes": base58.Encode(discriminator)}},
		},
	}

	var result []keyedAccount
	if err := c.Call(ctx, "getProgramAccounts", &result, program.String(), cfg); err != nil {
		return nil, err
	}

	keys := make([]migrator.Address, 0, len(result))
	for _, ka := range result {
		addr, err := address.ParseAddress(ka.Pubkey)
		if err != nil {
			return nil, err
		}
		keys = append(keys, addr)
	}
	return keys, nil
}

type accountsResult struct {
	Value []*Account `json:"value"`
}

// MultipleAccounts fetches keys in one call. Missing accounts are nil.
func (c *Client) MultipleAccounts(ctx context.Context, keys []migrator.Address, commitment string) ([]*Account, error) {
	encoded := make([]string, len(keys))
	for i, k := range keys {
		encoded[i] = k.String()
	}

	var result accountsResult
	cfg := map[string]any{"encoding": "base64", "commitment": commitment}
	if err := c.Call(ctx, "getMultipleAccounts", &result, encoded, cfg); err != nil {
		return nil, err
	}
	if len(result.Value) != len(keys) {
		return nil, fmt.Errorf("getMultipleAccounts returned %d accounts for %d keys", len(result.Value), len(keys))
	}
	return result.Value, nil
}

type accountResult struct {
	Value *Account `json:"value"`
}

// AccountInfo fetches one account. A missing account is nil.
func (c *Client) AccountInfo(ctx context.Context, key migrator.Address, commitment string) (*Account, error) {
	var result accountResult
	cfg := map[string]any{"encoding": "base64", "commitment": commitment}
	if err := c.Call(ctx, "getAccountInfo", &result, key.String(), cfg); err != nil {
		return nil, err
	}
	return result.Value, nil
}

type blockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// LatestBlockhash returns a recent blockhash and the last block height it is valid for.
func (c *Client) LatestBlockhash(ctx context.Context, commitment string) (string, uint64, error) {
	var result blockhashResult
	if err := c.Call(ctx, "getLatestBlockhash", &result, commitmentConfig{Commitment: commitment}); err != nil {
		return "", 0, err
	}
	return result.Value.Blockhash, result.Value.LastValidBlockHeight, nil
}

// SendTransaction submits a signed transaction with preflight simulation.
func (c *Client) SendTransaction(ctx context.Context, tx []byte, commitment string) (string, error) {
	cfg := map[string]any{
		"encoding":            "base64",
		"preflightCommitment": commitment,
	}
	var sig string
	if err := c.Call(ctx, "sendTransaction", &sig, base64.StdEncoding.EncodeToString(tx), cfg); err != nil {
		return "", err
	}
	return sig, nil
}

// SignatureStatus is the processing status of a transaction.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// Failed reports whether the transaction landed with an error.
func (s *SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

type statusesResult struct {
	Value []*SignatureStatus `json:"value"`
}

// SignatureStatus returns the status of sig, or nil if the node has not seen it.
func (c *Client) SignatureStatus(ctx context.Context, sig string) (*SignatureStatus, error) {
	var result statusesResult
	cfg := map[string]bool{"searchTransactionHistory": true}
	if err := c.Call(ctx, "getSignatureStatuses", &result, []string{sig}, cfg); err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// BlockHeight returns the current block height.
func (c *Client) BlockHeight(ctx context.Context, commitment string) (uint64, error) {
	var height uint64
	if err := c.Call(ctx, "getBlockHeight", &height, commitmentConfig{Commitment: commitment}); err != nil {
		return 0, err
	}
	return height, nil
}
