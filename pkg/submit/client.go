// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package submit

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/icrar/chiles02/pkg/graph"
	"github.com/icrar/chiles02/pkg/httputil"
	"github.com/icrar/chiles02/pkg/logutil"
	"github.com/icrar/chiles02/pkg/retry"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	// DefaultDIMPort is the REST port of a data island manager.
	DefaultDIMPort = 8001
	// DefaultNMPort is the REST port of a node manager.
	DefaultNMPort = 8000

	defaultMaxTries = 5
)

// Client talks to the REST API of a data island manager.
type Client struct {
	http     *httputil.Client
	baseURL  string
	maxTries uint64
	backoff  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *httputil.Client) Option {
	return func(cli *Client) { cli.http = c }
}

// WithRetry sets the number of tries and the initial backoff for each call.
func WithRetry(maxTries uint64, backoff time.Duration) Option {
	return func(cli *Client) {
		cli.maxTries = maxTries
		cli.backoff = backoff
	}
}

// NewClient creates a client for the manager at host:port.
func NewClient(host string, port int, opts ...Option) *Client {
	c := &Client{
		http:     httputil.NewClient(httputil.DefaultTimeout),
		baseURL:  "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		maxTries: defaultMaxTries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return &c.http.Client
}

// BaseURL returns the root URL of the manager.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(
	ctx context.Context, method, path string, contentType string, body []byte,
) ([]byte, error) {
	target := c.baseURL + path
	var headers http.Header
	if contentType != "" {
		headers = http.Header{"Content-Type": {contentType}}
	}
	var resp []byte
	err := retry.Do(ctx, func() error {
		var err error
		resp, err = c.http.DoRequest(ctx, target, method, headers, bytes.NewReader(body))
		if err != nil {
			log.Debug("engine request failed",
				zap.String("method", method), zap.String("url", target), logutil.ShortError(err))
		}
		return err
	},
		retry.WithMaxTries(c.maxTries),
		retry.WithBackoffBaseDelay(c.backoff),
		retry.WithIsRetryableErr(httputil.IsRetryable))
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrSubmitRequest, err, method+" "+target)
	}
	return resp, nil
}

// CreateSession creates an empty session.
func (c *Client) CreateSession(ctx context.Context, sessionID string) error {
	body, err := json.Marshal(map[string]string{"sessionId": sessionID})
	if err != nil {
		return cerrors.WrapError(cerrors.ErrSubmitRequest, err, "create session")
	}
	_, err = c.do(ctx, http.MethodPost, "/api/sessions", "application/json", body)
	return err
}

// AppendGraph adds the nodes of g to the session.
func (c *Client) AppendGraph(ctx context.Context, sessionID string, g *graph.Graph) error {
	body, err := graph.Marshal(g)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/api/sessions/%s/graph/append", url.PathEscape(sessionID))
	_, err = c.do(ctx, http.MethodPost, path, "application/json", body)
	return err
}

// DeploySession starts the session; roots are marked completed so execution
// starts from them.
func (c *Client) DeploySession(ctx context.Context, sessionID string, roots []string) error {
	form := url.Values{}
	if len(roots) > 0 {
		form.Set("completed", strings.Join(roots, ","))
	}
	path := fmt.Sprintf("/api/sessions/%s/deploy", url.PathEscape(sessionID))
	_, err := c.do(ctx, http.MethodPost, path,
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	return err
}

// Submit creates a session, appends g and deploys it.
func (c *Client) Submit(ctx context.Context, sessionID string, g *graph.Graph, roots []string) error {
	if err := c.CreateSession(ctx, sessionID); err != nil {
		return err
	}
	if err := c.AppendGraph(ctx, sessionID, g); err != nil {
		return err
	}
	if err := c.DeploySession(ctx, sessionID, roots); err != nil {
		return err
	}
	log.Info("graph submitted",
		zap.String("manager", c.baseURL),
		zap.String("sessionID", sessionID),
		zap.Int("nodes", g.Len()),
		zap.Int("roots", len(roots)))
	return nil
}

type status struct {
	Hosts []string `json:"hosts"`
}

// Hosts returns the node managers the manager knows about.
func (c *Client) Hosts(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/api", "", nil)
	if err != nil {
		return nil, err
	}
	var s status
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, cerrors.WrapError(cerrors.ErrSubmitRequest, err, "GET "+c.baseURL+"/api")
	}
	return s.Hosts, nil
}
