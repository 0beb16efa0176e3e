package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Config holds the connection parameters for the gateway node
type Config struct {
	NodeURL           string
	NetworkID         string
	ContractAddress   string
	ConfirmationDepth int64
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
	FallbackFeeLimit  uint64
}

// DefaultConfig returns a Config with the ceilings and timeouts used
// when the config file does not override them
func DefaultConfig() Config {
	return Config{
		ConfirmationDepth: 1,
		ConfirmTimeout:    90 * time.Second,
		PollInterval:      2 * time.Second,
		FallbackFeeLimit:  3_000_000,
	}
}

// Receipt is returned once a mutating call is irreversibly accepted
type Receipt struct {
	ConfirmationRef string
	BlockHeight     int64
	FeeUsed         uint64
	Events          []Event
}

// Event is an emitted record parsed from a confirmation receipt
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EmittedUint looks up a numeric identifier emitted under the given
// event type and attribute key, e.g. a newly assigned listing id
func (r *Receipt) EmittedUint(eventType, key string) (uint64, bool) {
	for _, ev := range r.Events {
		if ev.Type != eventType {
			continue
		}
		raw, ok := ev.Attributes[key]
		if !ok {
			continue
		}
		var v uint64
		if _, err := fmt.Sscanf(raw, "%d", &v); err == nil {
			return v, true
		}
	}
	return 0, false
}

// ExecOpts carries the per-call execution parameters
type ExecOpts struct {
	// Identity is the signing address the call is submitted from
	Identity string
	// Value is the payment attached to a payable call
	Value uint64
	// IdempotencyKey, when set, lets the gateway recognize a repeated
	// submission attempt and resume waiting on the recorded hash
	// instead of submitting twice
	IdempotencyKey string
}

// Gateway executes read and mutating calls against the on-chain
// contract through the gateway node's JSON-RPC interface
type Gateway struct {
	cfg        Config
	httpClient *http.Client
	logger     cmtlog.Logger
	journal    *Journal
	reqID      atomic.Uint64

	// at most one mutating call per signing identity may be in flight
	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// NewGateway creates a gateway for the configured node and contract.
// The journal is optional, without it timeout recovery degrades to
// caller-side re-query.
func NewGateway(cfg Config, journal *Journal, logger cmtlog.Logger) *Gateway {
	return &Gateway{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:   logger,
		journal:  journal,
		inflight: make(map[string]*sync.Mutex),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// rpc performs a single JSON-RPC round trip against the node
func (g *Gateway) rpc(ctx context.Context, method string, params any, out any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      g.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return &Error{Code: CodeNetworkUnreachable, Message: "failed to encode request", Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.NodeURL, bytes.NewReader(payload))
	if err != nil {
		return &Error{Code: CodeNetworkUnreachable, Message: "failed to build request", Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &Error{
			Code:    CodeNetworkUnreachable,
			Message: "ledger node did not respond",
			Detail:  err.Error(),
		}
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return &Error{
			Code:    CodeNetworkUnreachable,
			Message: "invalid response from ledger node",
			Detail:  err.Error(),
		}
	}
	if rpcResp.Error != nil {
		return mapRPCError(method, rpcResp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return &Error{
				Code:    CodeNetworkUnreachable,
				Message: "failed to decode result",
				Detail:  err.Error(),
			}
		}
	}
	return nil
}

// mapRPCError translates a node-side rejection into the gateway taxonomy
func mapRPCError(method string, e *rpcError) error {
	msg := strings.ToLower(e.Message + " " + e.Data)
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return &Error{Code: CodeInsufficientFunds, Message: e.Message, Detail: e.Data}
	case method == "ledger_estimate":
		// a failing estimate means the call would revert under current
		// state, recovered by the caller with the fallback ceiling
		return &Error{Code: CodeEstimationFailed, Message: e.Message, Detail: e.Data}
	case strings.Contains(msg, "revert"):
		return &Error{Code: CodeReverted, Message: e.Message, Detail: e.Data}
	default:
		return &Error{Code: CodeNetworkUnreachable, Message: e.Message, Detail: e.Data}
	}
}

// callParams is the wire form of a contract invocation
type callParams struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Method string `json:"method"`
	Args   []any  `json:"args"`
	Value  uint64 `json:"value,omitempty"`
	Fee    uint64 `json:"fee,omitempty"`
	Nonce  uint64 `json:"nonce,omitempty"`
}

// Call performs a read-only contract call, no side effect and no
// confirmation wait
func (g *Gateway) Call(ctx context.Context, method string, args []any, out any) error {
	params := callParams{To: g.cfg.ContractAddress, Method: method, Args: args}
	return g.rpc(ctx, "ledger_call", []any{params}, out)
}

// ChainID returns the network identifier reported by the node
func (g *Gateway) ChainID(ctx context.Context) (string, error) {
	var id string
	if err := g.rpc(ctx, "ledger_chainId", []any{}, &id); err != nil {
		return "", err
	}
	return id, nil
}

// Code returns the deployed bytecode at the given address
func (g *Gateway) Code(ctx context.Context, address string) (string, error) {
	var code string
	if err := g.rpc(ctx, "ledger_getCode", []any{address}, &code); err != nil {
		return "", err
	}
	return code, nil
}

func (g *Gateway) nonce(ctx context.Context, identity string) (uint64, error) {
	var n uint64
	if err := g.rpc(ctx, "ledger_nonce", []any{identity}, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// estimateFee asks the node for the execution budget of the call. A
// node-side estimation failure falls back to the configured ceiling,
// since pre-estimation failures are common for exploratory calls. A
// transport failure is surfaced to the caller.
func (g *Gateway) estimateFee(ctx context.Context, params callParams) (uint64, error) {
	var fee uint64
	err := g.rpc(ctx, "ledger_estimate", []any{params}, &fee)
	if err != nil {
		if IsCode(err, CodeNetworkUnreachable) {
			return 0, err
		}
		g.logger.Info("Fee estimation failed, using fallback ceiling",
			"method", params.Method, "fallback", g.cfg.FallbackFeeLimit, "err", err)
		return g.cfg.FallbackFeeLimit, nil
	}
	return fee, nil
}

func (g *Gateway) identityLock(identity string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.inflight[identity]
	if !ok {
		l = &sync.Mutex{}
		g.inflight[identity] = l
	}
	return l
}

// Execute submits a mutating contract call and blocks until the network
// reports it irreversible. The returned receipt carries the confirmation
// reference and any emitted identifiers.
//
// Cancellation through ctx is honored up to submission. Once the call is
// submitted it is allowed to resolve, only the confirmation wait can
// expire, surfacing a retryable timeout.
func (g *Gateway) Execute(ctx context.Context, method string, args []any, opts ExecOpts) (*Receipt, error) {
	lock := g.identityLock(opts.Identity)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &Error{Code: CodeTimeout, Message: "cancelled before submission", Detail: err.Error()}
	}

	// A recorded pending submission for the same idempotency key means a
	// previous attempt timed out after submitting. Resume waiting on the
	// recorded hash instead of submitting a duplicate.
	if g.journal != nil && opts.IdempotencyKey != "" {
		if entry, ok, _ := g.journal.Lookup(opts.IdempotencyKey); ok && entry.Status == SubmissionPending {
			g.logger.Info("Resuming confirmation wait for recorded submission",
				"key", opts.IdempotencyKey, "tx_hash", entry.TxHash)
			return g.awaitConfirmation(entry.TxHash, opts.IdempotencyKey)
		}
	}

	params := callParams{
		From:   opts.Identity,
		To:     g.cfg.ContractAddress,
		Method: method,
		Args:   args,
		Value:  opts.Value,
	}
	fee, err := g.estimateFee(ctx, params)
	if err != nil {
		return nil, err
	}
	params.Fee = fee

	nonce, err := g.nonce(ctx, opts.Identity)
	if err != nil {
		return nil, err
	}
	params.Nonce = nonce

	var txHash string
	if err := g.rpc(ctx, "ledger_submit", []any{params}, &txHash); err != nil {
		// a stale ordering value means another call from this identity
		// landed first, retry once with a fresh one
		if le, ok := err.(*Error); ok && strings.Contains(strings.ToLower(le.Message), "nonce") {
			if params.Nonce, err = g.nonce(ctx, opts.Identity); err != nil {
				return nil, err
			}
			if err = g.rpc(ctx, "ledger_submit", []any{params}, &txHash); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	if g.journal != nil && opts.IdempotencyKey != "" {
		if err := g.journal.Record(opts.IdempotencyKey, txHash, SubmissionPending); err != nil {
			g.logger.Error("Failed to journal submission", "key", opts.IdempotencyKey, "err", err)
		}
	}

	g.logger.Info("Submitted mutating call", "method", method, "from", opts.Identity, "tx_hash", txHash)
	return g.awaitConfirmation(txHash, opts.IdempotencyKey)
}

// receiptResult is the wire form of ledger_receipt
type receiptResult struct {
	TxHash        string  `json:"tx_hash"`
	Status        string  `json:"status"` // "confirmed" | "reverted"
	RevertReason  string  `json:"revert_reason,omitempty"`
	BlockHeight   int64   `json:"block_height"`
	Confirmations int64   `json:"confirmations"`
	FeeUsed       uint64  `json:"fee_used"`
	Events        []Event `json:"events"`
}

// awaitConfirmation polls for the receipt until the configured depth is
// reached. It deliberately does not watch the caller's context, an
// in-flight ledger mutation cannot be safely aborted.
func (g *Gateway) awaitConfirmation(txHash, idempotencyKey string) (*Receipt, error) {
	deadline := time.Now().Add(g.cfg.ConfirmTimeout)
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var res receiptResult
		err := g.rpc(context.Background(), "ledger_receipt", []any{txHash}, &res)
		if err == nil && res.TxHash != "" && res.Confirmations >= g.cfg.ConfirmationDepth {
			return g.finishConfirmation(&res, idempotencyKey)
		}
		if err != nil && !IsCode(err, CodeNetworkUnreachable) {
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, &Error{
				Code:    CodeTimeout,
				Message: "confirmation wait expired",
				Detail:  fmt.Sprintf("tx %s may still confirm, re-query before resubmitting", txHash),
			}
		}
		<-ticker.C
	}
}

func (g *Gateway) finishConfirmation(res *receiptResult, idempotencyKey string) (*Receipt, error) {
	status := SubmissionConfirmed
	if res.Status == "reverted" {
		status = SubmissionReverted
	}
	if g.journal != nil && idempotencyKey != "" {
		if err := g.journal.Record(idempotencyKey, res.TxHash, status); err != nil {
			g.logger.Error("Failed to journal confirmation", "key", idempotencyKey, "err", err)
		}
	}

	if res.Status == "reverted" {
		return nil, &Error{
			Code:    CodeReverted,
			Message: "ledger rejected the call",
			Detail:  res.RevertReason,
		}
	}

	g.logger.Info("Call confirmed", "tx_hash", res.TxHash, "height", res.BlockHeight, "fee_used", res.FeeUsed)
	return &Receipt{
		ConfirmationRef: res.TxHash,
		BlockHeight:     res.BlockHeight,
		FeeUsed:         res.FeeUsed,
		Events:          res.Events,
	}, nil
}
