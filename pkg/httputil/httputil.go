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

package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pingcap/errors"
)

// DefaultTimeout bounds one request to the engine.
const DefaultTimeout = 60 * time.Second

// Client wraps an HTTP client.
type Client struct {
	http.Client
}

// NewClient creates an HTTP client with the given timeout, DefaultTimeout if
// it is not positive.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Client: http.Client{Transport: http.DefaultTransport, Timeout: timeout},
	}
}

// StatusError is returned for a response outside 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Body)
}

// IsRetryable reports whether the request may succeed if sent again: the
// server failed or the request never got a response.
func IsRetryable(err error) bool {
	cause := errors.Cause(err)
	if cause == context.Canceled || cause == context.DeadlineExceeded {
		return false
	}
	if se, ok := cause.(*StatusError); ok {
		return se.Code >= http.StatusInternalServerError
	}
	return true
}

// DoRequest sends an request and returns an HTTP response content.
func (c *Client) DoRequest(
	ctx context.Context, url, method string, headers http.Header, body io.Reader,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Trace(err)
	}

	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Trace(&StatusError{Code: resp.StatusCode, Body: string(content)})
	}
	return content, nil
}
