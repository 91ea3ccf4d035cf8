// Package gateway is the single entry point for outbound API calls:
// it attaches auth headers, classifies failures, and recovers expired
// sessions through a single-flight token refresh with request replay.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/phannyngoun1/hello-ticket-sub011/internal/types"
)

const maxResponseBytes = 8 << 20

// CallOptions shapes a single API call. RequiresAuth attaches the
// Authorization header and makes 401s eligible for refresh-and-replay.
type CallOptions struct {
	Method       string
	Body         any
	RequiresAuth bool
}

type Client struct {
	base    string
	http    *http.Client
	tokens  *TokenStore
	broker  *Broker
	signals *SignalBus
	silent  []string
}

// New builds the gateway. httpClient may carry transport-level
// timeouts; the gateway itself defines none.
func New(cfg types.ClientConfig, httpClient *http.Client, tokens *TokenStore, broker *Broker, signals *SignalBus) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		broker:  broker,
		signals: signals,
		silent:  cfg.SilentEndpoints,
	}
}

// Call issues the request and returns the raw response body (nil for
// 204). On a 401 with RequiresAuth it joins the refresh broker and
// replays the original call once with the fresh token; every other
// failure is classified and returned as *types.APIError.
func (c *Client) Call(ctx context.Context, endpoint string, opts CallOptions) ([]byte, error) {
	var usedToken string
	if opts.RequiresAuth {
		usedToken = c.tokens.Access()
	}
	body, err := c.do(ctx, endpoint, opts, usedToken)
	if err == nil {
		return body, nil
	}
	var apiErr *types.APIError
	if !errors.As(err, &apiErr) {
		return nil, err // transport failure, propagated unchanged
	}

	if apiErr.Kind == types.KindAuth && opts.RequiresAuth {
		if c.broker != nil && c.broker.CanRefresh() {
			if rerr := c.broker.EnsureFresh(ctx, usedToken); rerr != nil {
				// Broker already cleared tokens and signalled; every
				// queued call is rejected with the same error.
				return nil, rerr
			}
			body, err = c.do(ctx, endpoint, opts, c.tokens.Access())
			if err == nil {
				return body, nil
			}
			// Replayed exactly once. A second 401 means the fresh
			// token is not accepted either.
			if errors.As(err, &apiErr) && apiErr.Kind == types.KindAuth {
				c.signals.NotifySessionExpired()
			}
			return nil, err
		}
		c.signals.NotifySessionExpired()
		return nil, apiErr
	}

	if apiErr.Kind == types.KindForbidden {
		c.signals.NotifyForbidden(apiErr.Message)
	}
	// Permission errors belong to the caller: no signal, no retry.
	return nil, apiErr
}

// CallJSON performs Call and decodes the response into out. A 204 (or
// empty body) leaves out untouched.
func (c *Client) CallJSON(ctx context.Context, endpoint string, opts CallOptions, out any) error {
	raw, err := c.Call(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	if len(raw) == 0 || out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) do(ctx context.Context, endpoint string, opts CallOptions, authToken string) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, types.Err(types.ErrNetwork, err, "encode request body")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, reqBody)
	if err != nil {
		return nil, types.Err(types.ErrNetwork, err, "")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.RequiresAuth && authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, types.Err(types.ErrNetwork, err, "%s %s", method, endpoint)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, types.Err(types.ErrNetwork, err, "read response")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
			return nil, nil
		}
		return raw, nil
	}

	apiErr := classify(resp.StatusCode, resp.Status, raw)
	apiErr.Silent = c.isSilent(endpoint) && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound)
	if !apiErr.Silent {
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Warn("api call failed")
	}
	return nil, apiErr
}

func (c *Client) isSilent(endpoint string) bool {
	for _, p := range c.silent {
		if strings.HasPrefix(endpoint, p) {
			return true
		}
	}
	return false
}
