// Package rpcclient talks to the node's JSON-RPC 1.0 interface over HTTP
// Basic auth, per spec.md §6.1. It keeps the teacher's circuit-breaker and
// retry design (common/rpc/client.go) and adds request throttling so a
// misconfigured poll interval cannot hammer the node.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zecrx/randomx-miner/internal/header"
	"github.com/zecrx/randomx-miner/internal/metrics"
)

// CircuitState mirrors the three-state circuit breaker of the node RPC
// client this package is grounded on.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Call while the breaker is open.
var ErrCircuitOpen = errors.New("rpcclient: circuit breaker is open")

// acceptedSubmitReplies lists submitblock results the engine treats as
// success, per spec.md §6.1.
var acceptedSubmitReplies = map[string]bool{
	"":                        true, // null decodes to the empty string here
	"duplicate":               true,
	"inconclusive":            true,
	"duplicate-inconclusive":  true,
}

// Config holds client configuration, defaulted by DefaultConfig.
type Config struct {
	URL      string
	User     string
	Password string
	Timeout  time.Duration

	RetryAttempts int
	RetryDelay    time.Duration

	CBEnabled      bool
	CBThreshold    int
	CBResetTimeout time.Duration

	// RateLimit caps outbound requests per second; RateBurst is the token
	// bucket's burst size. Zero RateLimit disables throttling.
	RateLimit rate.Limit
	RateBurst int

	Logger *slog.Logger

	// Metrics, if set, records request counts/latency and circuit breaker
	// state transitions.
	Metrics *metrics.Metrics
}

// DefaultConfig returns the client configuration the miner uses unless
// overridden by CLI flags.
func DefaultConfig(url, user, password string) Config {
	return Config{
		URL:            url,
		User:           user,
		Password:       password,
		Timeout:        30 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     time.Second,
		CBEnabled:      true,
		CBThreshold:    5,
		CBResetTimeout: 30 * time.Second,
		RateLimit:      rate.Limit(5),
		RateBurst:      5,
		Logger:         slog.Default(),
	}
}

// Client is a JSON-RPC 1.0 client scoped to the five methods spec.md §6.1
// names: getblocktemplate, submitblock, getblockchaininfo, getmininginfo,
// getwalletinfo.
type Client struct {
	url      string
	user     string
	password string
	http     *http.Client
	reqID    atomic.Uint64
	logger   *slog.Logger
	limiter  *rate.Limiter
	metrics  *metrics.Metrics

	retryAttempts int
	retryDelay    time.Duration

	cbEnabled      bool
	cbState        CircuitState
	cbFailures     int
	cbSuccesses    int
	cbThreshold    int
	cbResetTimeout time.Duration
	cbLastChange   time.Time
	cbMu           sync.Mutex
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return &Client{
		url:            cfg.URL,
		user:           cfg.User,
		password:       cfg.Password,
		logger:         cfg.Logger.With("component", "rpc-client"),
		limiter:        limiter,
		metrics:        cfg.Metrics,
		retryAttempts:  cfg.RetryAttempts,
		retryDelay:     cfg.RetryDelay,
		cbEnabled:      cfg.CBEnabled,
		cbState:        CircuitClosed,
		cbThreshold:    cfg.CBThreshold,
		cbResetTimeout: cfg.CBResetTimeout,
		http:           &http.Client{Timeout: cfg.Timeout},
	}
}

// request is a JSON-RPC 1.0 request.
type request struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// response is a JSON-RPC 1.0 response.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call performs method with params, decoding the result into out (which may
// be nil), applying the circuit breaker, rate limiter, and retry loop.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c.cbEnabled && !c.cbAllow() {
		return ErrCircuitOpen
	}

	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := c.doCall(ctx, method, params, out)
		if err == nil {
			c.cbRecordSuccess()
			if c.metrics != nil {
				c.metrics.RecordRPC(method, "success", time.Since(start).Seconds())
			}
			return nil
		}

		lastErr = err
		c.logger.Warn("rpc call failed", "method", method, "attempt", attempt+1, "error", err)
	}

	c.cbRecordFailure()
	if c.metrics != nil {
		c.metrics.RecordRPC(method, "error", time.Since(start).Seconds())
	}
	return lastErr
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}, out interface{}) error {
	req := request{ID: c.reqID.Add(1), Method: method, Params: params}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		httpReq.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) cbAllow() bool {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	switch c.cbState {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(c.cbLastChange) >= c.cbResetTimeout {
			c.cbState = CircuitHalfOpen
			c.logger.Info("circuit breaker half-open")
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	}
	return false
}

func (c *Client) cbRecordSuccess() {
	if !c.cbEnabled {
		return
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	switch c.cbState {
	case CircuitHalfOpen:
		c.cbSuccesses++
		if c.cbSuccesses >= c.cbThreshold {
			c.cbState = CircuitClosed
			c.cbFailures = 0
			c.cbSuccesses = 0
			c.logger.Info("circuit breaker closed")
			if c.metrics != nil {
				c.metrics.SetCircuitOpen(false)
			}
		}
	case CircuitClosed:
		c.cbFailures = 0
	}
}

func (c *Client) cbRecordFailure() {
	if !c.cbEnabled {
		return
	}
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	switch c.cbState {
	case CircuitHalfOpen:
		c.cbState = CircuitOpen
		c.cbLastChange = time.Now()
		c.logger.Warn("circuit breaker opened (half-open failed)")
		if c.metrics != nil {
			c.metrics.SetCircuitOpen(true)
		}
	case CircuitClosed:
		c.cbFailures++
		if c.cbFailures >= c.cbThreshold {
			c.cbState = CircuitOpen
			c.cbLastChange = time.Now()
			c.logger.Warn("circuit breaker opened", "failures", c.cbFailures)
			if c.metrics != nil {
				c.metrics.SetCircuitOpen(true)
			}
		}
	}
}

// CircuitBreakerState returns the current circuit breaker state.
func (c *Client) CircuitBreakerState() CircuitState {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.cbState
}

// GetBlockTemplate calls getblocktemplate with the capability set spec.md
// §6.1 names and decodes the reply into header.TemplateDoc.
func (c *Client) GetBlockTemplate(ctx context.Context) (*header.TemplateDoc, error) {
	params := []interface{}{
		map[string]interface{}{
			"capabilities": []string{"coinbasetxn", "workid", "coinbase/append"},
		},
	}
	var doc header.TemplateDoc
	if err := c.Call(ctx, "getblocktemplate", params, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SubmitBlock submits a solved block's hex bytes. It treats the node's
// null, "duplicate", "inconclusive", and "duplicate-inconclusive" replies
// as success and everything else as rejection, per spec.md §6.1.
func (c *Client) SubmitBlock(ctx context.Context, blockHex string) error {
	var raw json.RawMessage
	if err := c.Call(ctx, "submitblock", []interface{}{blockHex}, &raw); err != nil {
		return err
	}

	var reply string
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &reply); err != nil {
			return fmt.Errorf("unmarshal submitblock reply: %w", err)
		}
	}
	if !acceptedSubmitReplies[reply] {
		return fmt.Errorf("submitblock rejected: %s", reply)
	}
	return nil
}

// BlockchainInfo is the subset of getblockchaininfo the miner needs for tip
// tracking and disconnect detection.
type BlockchainInfo struct {
	Chain  string `json:"chain"`
	Blocks int64  `json:"blocks"`
}

// GetBlockchainInfo calls getblockchaininfo.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	var info BlockchainInfo
	if err := c.Call(ctx, "getblockchaininfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MiningInfo is the subset of getmininginfo the miner displays.
type MiningInfo struct {
	NetworkSolPS float64 `json:"networksolps"`
	Difficulty   float64 `json:"difficulty"`
}

// GetMiningInfo calls getmininginfo.
func (c *Client) GetMiningInfo(ctx context.Context) (*MiningInfo, error) {
	var info MiningInfo
	if err := c.Call(ctx, "getmininginfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// WalletInfo is the subset of getwalletinfo the balance display polls,
// unless --no-balance is set.
type WalletInfo struct {
	Balance float64 `json:"balance"`
}

// GetWalletInfo calls getwalletinfo.
func (c *Client) GetWalletInfo(ctx context.Context) (*WalletInfo, error) {
	var info WalletInfo
	if err := c.Call(ctx, "getwalletinfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
