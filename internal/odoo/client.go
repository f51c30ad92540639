// Package odoo implements the object-RPC port against the Odoo XML-RPC API:
// a process-lifetime authenticated session plus execute_kw invocation with
// caller-supplied timeouts.
package odoo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"
)

// SessionState tracks the explicit auth lifecycle of the RPC session.
type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticating
	Authenticated
)

// Credentials identify the Odoo database and user.
type Credentials struct {
	URL      string
	Database string
	Username string
	Password string
}

// Caller is the minimal surface the sync components invoke. The concrete
// Client implements it; tests substitute recording fakes.
type Caller interface {
	ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error)
}

// Client is the XML-RPC object port. Safe for concurrent use.
type Client struct {
	creds   Credentials
	timeout time.Duration
	logger  *slog.Logger

	common *xmlrpc.Client
	object *xmlrpc.Client

	mu    sync.Mutex
	state SessionState
	uid   int64
}

// NewClient builds a client for the given endpoint. No network traffic
// happens until the first call authenticates lazily.
func NewClient(creds Credentials, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if _, err := url.Parse(creds.URL); err != nil {
		return nil, fmt.Errorf("odoo: parse url: %w", err)
	}
	transport := &timeoutTransport{
		base: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: 15 * time.Second}).DialContext,
			TLSHandshakeTimeout: 15 * time.Second,
		},
		timeout: timeout,
	}
	common, err := xmlrpc.NewClient(creds.URL+"/xmlrpc/2/common", transport)
	if err != nil {
		return nil, fmt.Errorf("odoo: common client: %w", err)
	}
	object, err := xmlrpc.NewClient(creds.URL+"/xmlrpc/2/object", transport)
	if err != nil {
		return nil, fmt.Errorf("odoo: object client: %w", err)
	}
	return &Client{
		creds:   creds,
		timeout: timeout,
		logger:  logger,
		common:  common,
		object:  object,
	}, nil
}

// State reports the current session state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// timeoutTransport bounds each request end to end, response body included.
// The xmlrpc client issues context-less requests; without this bound a hung
// server pins the call goroutine for the life of the connection.
type timeoutTransport struct {
	base    http.RoundTripper
	timeout time.Duration
}

func (t *timeoutTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// call runs one XML-RPC method under the configured timeout.
func (c *Client) call(ctx context.Context, client *xmlrpc.Client, method string, params []any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reply any
	done := make(chan error, 1)
	go func() {
		done <- client.Call(method, params, &reply)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("odoo: %s: %w", method, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("odoo: %s: %w", method, err)
		}
		return reply, nil
	}
}

// authenticate establishes the session uid, caching it for process lifetime.
func (c *Client) authenticate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Authenticated {
		return c.uid, nil
	}

	c.state = Authenticating
	reply, err := c.call(ctx, c.common, "authenticate", []any{
		c.creds.Database, c.creds.Username, c.creds.Password, map[string]any{},
	})
	if err != nil {
		c.state = Unauthenticated
		return 0, err
	}
	uid, ok := reply.(int64)
	if !ok || uid <= 0 {
		c.state = Unauthenticated
		return 0, fmt.Errorf("odoo: authentication rejected for %q", c.creds.Username)
	}

	c.state = Authenticated
	c.uid = uid
	if c.logger != nil {
		c.logger.Info("odoo session established", slog.Int64("uid", uid))
	}
	return uid, nil
}

// expireSession drops the cached uid so the next call re-authenticates.
func (c *Client) expireSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Unauthenticated
	c.uid = 0
}

// ExecuteKw invokes model.method with positional args and keyword args.
// A detected session expiry triggers exactly one re-authentication.
func (c *Client) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	reply, err := c.executeOnce(ctx, model, method, args, kwargs)
	if err != nil && isSessionExpired(err) {
		c.expireSession()
		reply, err = c.executeOnce(ctx, model, method, args, kwargs)
	}
	return reply, err
}

func (c *Client) executeOnce(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	uid, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	params := []any{c.creds.Database, uid, c.creds.Password, model, method, args}
	if kwargs != nil {
		params = append(params, kwargs)
	}
	return c.call(ctx, c.object, "execute_kw", params)
}

func isSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "session expired") || strings.Contains(msg, "sessionexpired")
}
