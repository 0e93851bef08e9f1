package aptos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	sdk "github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/api"
	"go.uber.org/zap"
)

// Default configuration values.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultExpirationTTL = 10 * time.Minute
)

// Client wraps the Aptos SDK node client. Every call honours ctx: the SDK call keeps
// running in the background after a cancellation until its own HTTP timeout.
type Client struct {
	node          *sdk.NodeClient
	httpClient    *http.Client
	expirationTTL time.Duration
	logger        *zap.Logger

	chainMu sync.Mutex
	chainID uint8
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithProxy routes every request through an HTTP proxy.
func WithProxy(proxyURL *url.URL) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		}
	}
}

// WithExpiration sets how long submitted transactions stay valid.
func WithExpiration(d time.Duration) ClientOption {
	return func(c *Client) {
		c.expirationTTL = d
	}
}

// NewClient creates a new Aptos client. baseURL includes the /v1 prefix.
func NewClient(baseURL string, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	c := &Client{
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		expirationTTL: DefaultExpirationTTL,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	node, err := sdk.NewNodeClientWithHttpClient(strings.TrimRight(baseURL, "/"), 0, c.httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create node client for %s: %w", baseURL, err)
	}
	c.node = node
	return c, nil
}

// call runs a blocking SDK request and returns early when ctx is done
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return r.value, apiError(r.err)
		}
		return r.value, nil
	}
}

// LedgerInfo returns the current ledger state, including the chain id
func (c *Client) LedgerInfo(ctx context.Context) (*LedgerInfo, error) {
	info, err := call(ctx, c.node.Info)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger info: %w", err)
	}
	return &LedgerInfo{ChainID: info.ChainId, LedgerVersion: info.LedgerVersion()}, nil
}

// chain returns the chain id, fetched once
func (c *Client) chain(ctx context.Context) (uint8, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()

	if c.chainID != 0 {
		return c.chainID, nil
	}
	info, err := c.LedgerInfo(ctx)
	if err != nil {
		return 0, err
	}
	c.chainID = info.ChainID
	return c.chainID, nil
}

// CoinBalance returns the balance of a coin type through 0x1::coin::balance, which also
// counts the paired fungible asset
func (c *Client) CoinBalance(ctx context.Context, owner, coinType string) (uint64, error) {
	out, err := c.View(ctx, ViewRequest{
		Function:      "0x1::coin::balance",
		TypeArguments: []string{coinType},
		Arguments:     []Arg{Address(owner)},
	})
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("coin balance view returned nothing")
	}

	balance, err := ParseU64(out[0])
	if err != nil {
		return 0, fmt.Errorf("invalid coin balance: %w", err)
	}
	return balance, nil
}

// View calls a view function and returns its raw return values
func (c *Client) View(ctx context.Context, req ViewRequest) ([]json.RawMessage, error) {
	payload, err := req.toSDK()
	if err != nil {
		return nil, fmt.Errorf("failed to encode view %s: %w", req.Function, err)
	}

	values, err := call(ctx, func() ([]any, error) { return c.node.View(payload) })
	if err != nil {
		return nil, fmt.Errorf("failed to call view %s: %w", req.Function, err)
	}

	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode view %s result: %w", req.Function, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// EstimateGasPrice returns the network's suggested gas unit price
func (c *Client) EstimateGasPrice(ctx context.Context) (uint64, error) {
	info, err := call(ctx, c.node.EstimateGasPrice)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas price: %w", err)
	}
	return info.GasEstimate, nil
}

// BuildTransaction assembles an unsigned transaction for sender with the next sequence number
func (c *Client) BuildTransaction(
	ctx context.Context,
	sender string,
	payload EntryFunctionPayload,
	maxGasAmount uint64,
	gasUnitPrice uint64,
) (*RawTransaction, error) {
	from, err := parseAddress(sender)
	if err != nil {
		return nil, err
	}
	entry, err := payload.toSDK()
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload %s: %w", payload.Function, err)
	}
	chainID, err := c.chain(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := call(ctx, func() (*sdk.RawTransaction, error) {
		return c.node.BuildTransaction(from, entry,
			sdk.MaxGasAmount(maxGasAmount),
			sdk.GasUnitPrice(gasUnitPrice),
			sdk.ExpirationSeconds(int64(c.expirationTTL/time.Second)),
			sdk.ChainIdOption(chainID))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	return &RawTransaction{
		Sender:                  sender,
		SequenceNumber:          raw.SequenceNumber,
		MaxGasAmount:            raw.MaxGasAmount,
		GasUnitPrice:            raw.GasUnitPrice,
		ExpirationTimestampSecs: raw.ExpirationTimestampSeconds,
		Payload:                 payload,
		raw:                     raw,
	}, nil
}

// Simulate dry-runs a transaction with the SDK's simulation authenticator
func (c *Client) Simulate(ctx context.Context, tx *RawTransaction, signer *Account) (*Transaction, error) {
	if tx.raw == nil {
		return nil, fmt.Errorf("transaction was not built by this client")
	}

	out, err := call(ctx, func() ([]*api.UserTransaction, error) {
		return c.node.SimulateTransaction(tx.raw, signer.signer)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to simulate transaction: %w", err)
	}
	if len(out) == 0 || out[0] == nil {
		return nil, fmt.Errorf("simulation returned no result")
	}
	sim := userTransaction(out[0])

	c.logger.Debug("Transaction simulated",
		zap.String("sender", tx.Sender),
		zap.String("function", tx.Payload.Function),
		zap.String("vm_status", sim.VMStatus),
		zap.String("gas_used", sim.GasUsed))

	return sim, nil
}

// Submit signs the BCS transaction locally and submits it, returning its hash
func (c *Client) Submit(ctx context.Context, tx *RawTransaction, signer *Account) (string, error) {
	if tx.raw == nil {
		return "", fmt.Errorf("transaction was not built by this client")
	}

	signed, err := tx.raw.SignedTransaction(signer.signer)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	pending, err := call(ctx, func() (*api.SubmitTransactionResponse, error) {
		return c.node.SubmitTransaction(signed)
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}

	c.logger.Info("Transaction sent",
		zap.String("tx_hash", pending.Hash),
		zap.String("sender", tx.Sender),
		zap.String("function", tx.Payload.Function),
		zap.Uint64("sequence_number", tx.SequenceNumber),
		zap.Uint64("max_gas_amount", tx.MaxGasAmount))

	return pending.Hash, nil
}

// TransactionByHash fetches a pending or committed transaction
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	tx, err := call(ctx, func() (*api.Transaction, error) { return c.node.TransactionByHash(hash) })
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}

	if user, ok := tx.Inner.(*api.UserTransaction); ok {
		return userTransaction(user), nil
	}
	return &Transaction{Type: string(tx.Type), Hash: tx.Hash(), Success: tx.Success()}, nil
}

func userTransaction(tx *api.UserTransaction) *Transaction {
	success := tx.Success
	return &Transaction{
		Type:     TypeUserTransaction,
		Hash:     tx.Hash,
		Version:  strconv.FormatUint(tx.Version, 10),
		Success:  &success,
		VMStatus: tx.VmStatus,
		GasUsed:  strconv.FormatUint(tx.GasUsed, 10),
	}
}
