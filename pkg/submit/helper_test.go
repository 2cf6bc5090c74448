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
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/icrar/chiles02/pkg/httputil"
	"github.com/jarcoal/httpmock"
)

// newMockedClient returns a client whose requests are served by the returned
// transport. Tries are not delayed noticeably.
func newMockedClient(host string, port int) (*Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	hc := httputil.NewClient(0)
	hc.Transport = transport
	c := NewClient(host, port, WithHTTPClient(hc), WithRetry(3, 1))
	return c, transport
}

// recorder keeps the bodies of the requests it serves.
type recorder struct {
	mu     sync.Mutex
	bodies map[string][]byte
}

func newRecorder() *recorder {
	return &recorder{bodies: make(map[string][]byte)}
}

func (r *recorder) responder(status int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.bodies[req.Method+" "+req.URL.Path] = raw
		r.mu.Unlock()
		return httpmock.NewStringResponse(status, body), nil
	}
}

func (r *recorder) body(key string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[key]
}

func (r *recorder) form(key string) url.Values {
	values, _ := url.ParseQuery(string(r.body(key)))
	return values
}
