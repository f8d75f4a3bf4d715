package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/retry"
	"github.com/nftsnap/nftsnap/pkg/utils"
)

// JSON-RPC error codes that mean "slow down".
const (
	codeTooManyRequests = 429
	codeNodeBehind      = -32005
)

// HTTPClient is a JSON-RPC 2.0 client over HTTP with endpoint rotation and a
// per-endpoint circuit breaker. Rate limiting is left to the caller's scheduler.
type HTTPClient struct {
	endpoints []string
	client    *http.Client
	nextID    atomic.Uint64

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	MaxConns        int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxConns <= 0 {
		o.MaxConns = 10
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxConnsPerHost = o.MaxConns
		transport.MaxIdleConnsPerHost = o.MaxConns
		client = &http.Client{Timeout: o.Timeout, Transport: transport}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	return &HTTPClient{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
}

// isOpen returns true if the endpoint's breaker is OPEN.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens the circuit-breaker if the failure count exceeds the threshold.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call sends one JSON-RPC request and decodes result into out. Endpoints are
// tried in order, skipping those whose breaker is open; connection failures
// and 5xx answers move on to the next endpoint.
//
// Returned errors are classified for pkg/retry: rate limiting and
// server-side failures stay retryable, everything else is permanent.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, out any) error {
	if len(c.endpoints) == 0 {
		return retry.Permanent(errors.New("no endpoints configured"))
	}

	payload, err := json.Marshal(request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return retry.Permanent(fmt.Errorf("encode %s: %w", method, err))
	}

	lastErr := fmt.Errorf("%s: all endpoints unavailable", method)
	for _, ep := range c.endpoints {
		if c.isOpen(ep) {
			continue
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(payload))
		if reqErr != nil {
			return retry.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%s: %w", method, err)
			if !isTimeout(err) {
				c.noteFailure(ep)
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			_ = utils.DrainAndClose(resp.Body)
			return fmt.Errorf("%s: %w", method, errs.ErrRateLimited)
		case resp.StatusCode >= 500:
			_ = utils.DrainAndClose(resp.Body)
			lastErr = fmt.Errorf("%s: server %d", method, resp.StatusCode)
			c.noteFailure(ep)
			continue
		case resp.StatusCode >= 300:
			_ = utils.DrainAndClose(resp.Body)
			return retry.Permanent(fmt.Errorf("%s: http %d", method, resp.StatusCode))
		}

		var rr response
		decodeErr := json.NewDecoder(resp.Body).Decode(&rr)
		_ = utils.DrainAndClose(resp.Body)
		if decodeErr != nil {
			return retry.Permanent(fmt.Errorf("%s: %w: %v", method, errs.ErrMalformed, decodeErr))
		}
		c.noteSuccess(ep)

		if rr.Error != nil {
			if rr.Error.Code == codeTooManyRequests || rr.Error.Code == codeNodeBehind {
				return fmt.Errorf("%s: %w: %v", method, errs.ErrRateLimited, rr.Error)
			}
			return retry.Permanent(fmt.Errorf("%s: %w", method, rr.Error))
		}
		if out != nil {
			if err := json.Unmarshal(rr.Result, out); err != nil {
				return retry.Permanent(fmt.Errorf("%s: %w: %v", method, errs.ErrMalformed, err))
			}
		}
		return nil
	}

	return lastErr
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
