package rpcwork

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CircuitState mirrors a client's circuit breaker state.
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

// ClientConfig configures a Client.
type ClientConfig struct {
	URL       string
	Token     string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration

	CBEnabled      bool
	CBThreshold    int
	CBResetTimeout time.Duration

	Logger *slog.Logger
}

// DefaultClientConfig returns the configuration a remote worker starts from.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:            url,
		Timeout:        10 * time.Second,
		Retries:        3,
		RetryWait:      time.Second,
		CBEnabled:      true,
		CBThreshold:    5,
		CBResetTimeout: 30 * time.Second,
		Logger:         slog.Default(),
	}
}

// Client is a JSON-RPC client for a node's rpcwork endpoint, used by
// external mining processes to fetch compute templates and submit seals.
type Client struct {
	url     string
	token   string
	http    *http.Client
	reqID   atomic.Uint64
	logger  *slog.Logger

	retries   int
	retryWait time.Duration

	cbEnabled      bool
	cbState        CircuitState
	cbFailures     int
	cbSuccesses    int
	cbThreshold    int
	cbResetTimeout time.Duration
	cbLastChange   time.Time
	cbMu           sync.Mutex
}

// NewClient builds a client with default configuration.
func NewClient(url string) *Client {
	return NewClientWithConfig(DefaultClientConfig(url))
}

// NewClientWithConfig builds a client from an explicit configuration.
func NewClientWithConfig(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		url:            cfg.URL,
		token:          cfg.Token,
		logger:         cfg.Logger.With("component", "rpcwork-client"),
		retries:        cfg.Retries,
		retryWait:      cfg.RetryWait,
		cbEnabled:      cfg.CBEnabled,
		cbState:        CircuitClosed,
		cbThreshold:    cfg.CBThreshold,
		cbResetTimeout: cfg.CBResetTimeout,
		http:           &http.Client{Timeout: cfg.Timeout},
	}
}

// GetCompute calls work_getCompute.
func (c *Client) GetCompute(ctx context.Context) (*Compute, error) {
	var compute Compute
	if err := c.call(ctx, "work_getCompute", nil, &compute); err != nil {
		return nil, err
	}
	return &compute, nil
}

// SubmitSeal calls work_submitSeal.
func (c *Client) SubmitSeal(ctx context.Context, seal Seal) (bool, error) {
	var accepted bool
	if err := c.call(ctx, "work_submitSeal", seal, &accepted); err != nil {
		return false, err
	}
	return accepted, nil
}

// CircuitState returns the client's current circuit breaker state.
func (c *Client) CircuitState() CircuitState {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	return c.cbState
}

var errCircuitOpen = fmt.Errorf("rpcwork: circuit breaker is open")

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if c.cbEnabled && !c.cbAllow() {
		return errCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryWait * time.Duration(attempt)):
			}
		}

		err := c.doCall(ctx, method, params, result)
		if err == nil {
			c.cbRecordSuccess()
			return nil
		}

		lastErr = err
		c.logger.Warn("rpc call failed", "method", method, "attempt", attempt+1, "error", err)
	}

	c.cbRecordFailure()
	return lastErr
}

func (c *Client) doCall(ctx context.Context, method string, params interface{}, result interface{}) error {
	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("rpcwork: marshaling params: %w", err)
		}
		rawParams = encoded
	}

	req := request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprintf("%d", c.reqID.Add(1))),
		Method:  method,
		Params:  rawParams,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("rpcwork: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rpcwork: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpcwork: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpcwork: unexpected status code %d", resp.StatusCode)
	}

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("rpcwork: decoding response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		raw, err := json.Marshal(rpcResp.Result)
		if err != nil {
			return fmt.Errorf("rpcwork: re-marshaling result: %w", err)
		}
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("rpcwork: unmarshaling result: %w", err)
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
	case CircuitClosed:
		c.cbFailures++
		if c.cbFailures >= c.cbThreshold {
			c.cbState = CircuitOpen
			c.cbLastChange = time.Now()
		}
	}
}
