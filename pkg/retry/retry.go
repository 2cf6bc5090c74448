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

package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
)

// Do runs operation until it succeeds, returns a non-retryable error, runs
// out of tries or ctx is done. The last error of operation is returned.
func Do(ctx context.Context, operation func() error, opts ...Option) error {
	retryOption := newRetryOptions()
	for _, opt := range opts {
		opt(retryOption)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = retryOption.backoffBase
	expBackoff.MaxInterval = retryOption.backoffCap
	// tries are bounded by maxTries instead
	expBackoff.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(expBackoff, retryOption.maxTries-1)
	b = backoff.WithContext(b, ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !retryOption.isRetryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, b)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && lastErr == nil {
		return errors.Trace(ctx.Err())
	}
	return errors.Trace(lastErr)
}
