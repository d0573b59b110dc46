// Package rest implements the Eureka server REST protocol
// (registration, lease renewal and registry queries).
package rest

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/SoftKiwiGames/hermes/hermes/ctxlog"
	"github.com/cenkalti/backoff/v4"
)

const acceptXML = "application/xml"

// ErrInstanceGone is returned when the server no longer knows the instance,
// typically after lease eviction. Callers should re-register.
var ErrInstanceGone = errors.New("instance not registered with eureka")

// StatusError reports an unexpected HTTP status from the Eureka server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8761/eureka
	BaseURL string
	// BaseURLs lists additional server endpoints for failover. When set,
	// BaseURL is ignored.
	BaseURLs   []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type Client struct {
	http       *http.Client
	maxRetries int
	retryDelay time.Duration

	mu        sync.Mutex
	endpoints []string
	current   int
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	endpoints := cfg.BaseURLs
	if len(endpoints) == 0 {
		endpoints = []string{cfg.BaseURL}
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		endpoints:  endpoints,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

func (c *Client) base() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoints[c.current]
}

// failover rotates to the next server endpoint after a failed attempt.
func (c *Client) failover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = (c.current + 1) % len(c.endpoints)
}

// Register creates the instance lease via POST /apps/{app}.
func (c *Client) Register(ctx context.Context, app string, inst *Instance) error {
	path := "/apps/" + url.PathEscape(app)
	ctxlog.FromContext(ctx).Debug("sending register request", "path", path, "instance", inst.ID())

	body, err := xml.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to encode instance: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, body, acceptXML)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		text, _ := io.ReadAll(resp.Body)
		ctxlog.FromContext(ctx).Error("register rejected", "status", resp.StatusCode, "body", string(text))
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Deregister removes the instance lease via DELETE /apps/{app}/{id}.
func (c *Client) Deregister(ctx context.Context, app, instanceID string) error {
	path := fmt.Sprintf("/apps/%s/%s", url.PathEscape(app), url.PathEscape(instanceID))
	ctxlog.FromContext(ctx).Debug("sending deregister request", "path", path)

	resp, err := c.do(ctx, http.MethodDelete, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Heartbeat renews the instance lease via PUT /apps/{app}/{id}.
func (c *Client) Heartbeat(ctx context.Context, app, instanceID string) error {
	path := fmt.Sprintf("/apps/%s/%s", url.PathEscape(app), url.PathEscape(instanceID))
	ctxlog.FromContext(ctx).Debug("sending heartbeat request", "path", path)

	resp, err := c.do(ctx, http.MethodPut, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrInstanceGone
	default:
		return &StatusError{Code: resp.StatusCode}
	}
}

// FetchAll queries the full registry via GET /apps.
func (c *Client) FetchAll(ctx context.Context) ([]Instance, error) {
	return c.fetchApplications(ctx, "/apps")
}

// FetchApp queries all instances of one app via GET /apps/{app}.
func (c *Client) FetchApp(ctx context.Context, app string) ([]Instance, error) {
	path := "/apps/" + url.PathEscape(app)
	ctxlog.FromContext(ctx).Debug("sending fetch app request", "path", path)

	resp, err := c.do(ctx, http.MethodGet, path, nil, acceptXML)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var application Application
	if err := decodeXML(resp.Body, &application); err != nil {
		return nil, err
	}
	return application.Instances, nil
}

// FetchInstance queries a single instance via GET /apps/{app}/{id}.
func (c *Client) FetchInstance(ctx context.Context, app, instanceID string) (*Instance, error) {
	path := fmt.Sprintf("/apps/%s/%s", url.PathEscape(app), url.PathEscape(instanceID))
	ctxlog.FromContext(ctx).Debug("sending fetch instance request", "path", path)

	resp, err := c.do(ctx, http.MethodGet, path, nil, acceptXML)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrInstanceGone
	default:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var inst Instance
	if err := decodeXML(resp.Body, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// FetchVIP queries all instances under a VIP address via GET /vips/{vip}.
func (c *Client) FetchVIP(ctx context.Context, vip string) ([]Instance, error) {
	return c.fetchApplications(ctx, "/vips/"+url.PathEscape(vip))
}

// FetchSecureVIP queries all instances under a secure VIP address via GET /svips/{svip}.
func (c *Client) FetchSecureVIP(ctx context.Context, svip string) ([]Instance, error) {
	return c.fetchApplications(ctx, "/svips/"+url.PathEscape(svip))
}

// SetStatus overrides the instance status via PUT /apps/{app}/{id}/status.
func (c *Client) SetStatus(ctx context.Context, app, instanceID string, status Status) error {
	path := fmt.Sprintf("/apps/%s/%s/status?value=%s",
		url.PathEscape(app), url.PathEscape(instanceID), url.QueryEscape(string(status)))
	ctxlog.FromContext(ctx).Debug("sending update status request", "path", path)

	resp, err := c.do(ctx, http.MethodPut, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// SetMetadata updates one metadata key via PUT /apps/{app}/{id}/metadata.
func (c *Client) SetMetadata(ctx context.Context, app, instanceID, key, value string) error {
	path := fmt.Sprintf("/apps/%s/%s/metadata?%s=%s",
		url.PathEscape(app), url.PathEscape(instanceID), url.QueryEscape(key), url.QueryEscape(value))
	ctxlog.FromContext(ctx).Debug("sending update metadata request", "path", path)

	resp, err := c.do(ctx, http.MethodPut, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) fetchApplications(ctx context.Context, path string) ([]Instance, error) {
	ctxlog.FromContext(ctx).Debug("sending registry request", "path", path)

	resp, err := c.do(ctx, http.MethodGet, path, nil, acceptXML)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var apps Applications
	if err := decodeXML(resp.Body, &apps); err != nil {
		return nil, err
	}
	return apps.Instances(), nil
}

// do performs the request, retrying network errors and 5xx responses with
// exponential backoff up to the configured retry budget. Each failed attempt
// rotates to the next server endpoint before the retry.
func (c *Client) do(ctx context.Context, method, path string, body []byte, accept string) (*http.Response, error) {
	var resp *http.Response

	attempt := func() error {
		endpoint := c.base() + path
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/xml")
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err = c.http.Do(req)
		if err != nil {
			c.failover()
			return fmt.Errorf("request to %s failed: %w", endpoint, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			c.failover()
			return &StatusError{Code: resp.StatusCode}
		}
		return nil
	}

	if err := backoff.Retry(attempt, c.policy(ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	if c.retryDelay > 0 {
		policy.InitialInterval = c.retryDelay
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)
}

func decodeXML(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
