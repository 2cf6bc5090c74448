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
	"context"
	"net/http"

	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentProbes = 16

// ProbeNodes returns the hosts whose node manager answers on port, in the
// order of hosts. A host that does not answer is logged and left out.
func ProbeNodes(ctx context.Context, hosts []string, port int, opts ...Option) []string {
	alive := make([]bool, len(hosts))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentProbes)
	for i, host := range hosts {
		i, host := i, host
		eg.Go(func() error {
			c := NewClient(host, port, append([]Option{WithRetry(1, 0)}, opts...)...)
			if _, err := c.do(egCtx, http.MethodGet, "/api", "", nil); err != nil {
				log.Warn("node manager is not running", zap.String("host", host), zap.Error(err))
				return nil
			}
			alive[i] = true
			return nil
		})
	}
	_ = eg.Wait()

	res := make([]string, 0, len(hosts))
	for i, host := range hosts {
		if alive[i] {
			res = append(res, host)
		}
	}
	return res
}

// RunningNodes asks the data island manager for its hosts and keeps those
// whose node manager is running.
func RunningNodes(ctx context.Context, dim *Client, nmPort int, opts ...Option) ([]string, error) {
	hosts, err := dim.Hosts(ctx)
	if err != nil {
		return nil, err
	}
	running := ProbeNodes(ctx, hosts, nmPort, opts...)
	if len(running) == 0 {
		return nil, cerrors.ErrNoNodesRunning.GenWithStackByArgs(dim.BaseURL())
	}
	log.Info("node managers running",
		zap.Int("known", len(hosts)), zap.Strings("running", running))
	return running, nil
}
