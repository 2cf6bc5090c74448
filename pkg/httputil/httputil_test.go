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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func runServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck
		w.Write([]byte(`{"hosts": ["10.0.0.1"]}`))
	})
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		//nolint:errcheck
		w.Write([]byte("busy"))
	})
	return httptest.NewServer(mux)
}

func TestDoRequest(t *testing.T) {
	t.Parallel()

	server := runServer()
	defer server.Close()
	cli := NewClient(time.Second)
	ctx := context.Background()

	body, err := cli.DoRequest(ctx, server.URL+"/api", http.MethodGet, nil, nil)
	require.NoError(t, err)
	require.Equal(t, `{"hosts": ["10.0.0.1"]}`, string(body))

	headers := http.Header{"Content-Type": {"application/json"}}
	_, err = cli.DoRequest(ctx, server.URL+"/api/sessions", http.MethodPost, headers, nil)
	require.NoError(t, err)

	_, err = cli.DoRequest(ctx, server.URL+"/api/sessions", http.MethodPost, nil, nil)
	require.Error(t, err)
	require.False(t, IsRetryable(err))
	se, ok := errors.Cause(err).(*StatusError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, se.Code)

	_, err = cli.DoRequest(ctx, server.URL+"/broken", http.MethodGet, nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "[503] busy")
	require.True(t, IsRetryable(err))
}

func TestNewClientDefaultTimeout(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultTimeout, NewClient(0).Timeout)
	require.True(t, IsRetryable(errors.New("connection refused")))
	require.False(t, IsRetryable(errors.Trace(context.Canceled)))
}
