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

package errors

import (
	"github.com/pingcap/errors"
)

// errors
var (
	// configuration errors, never retried
	ErrInvalidConfig = errors.Normalize(
		"invalid configuration: %s",
		errors.RFCCodeText("CHILES:ErrInvalidConfig"),
	)
	ErrDecodeConfigFile = errors.Normalize(
		"decode config file %s failed",
		errors.RFCCodeText("CHILES:ErrDecodeConfigFile"),
	)
	ErrMissingCredentials = errors.Normalize(
		"aws credentials not found: %s",
		errors.RFCCodeText("CHILES:ErrMissingCredentials"),
	)
	ErrInvalidFrequencyRange = errors.Normalize(
		"invalid frequency range [%d, %d) with width %d",
		errors.RFCCodeText("CHILES:ErrInvalidFrequencyRange"),
	)
	ErrInvalidFrequencyPair = errors.Normalize(
		"invalid frequency pair %q",
		errors.RFCCodeText("CHILES:ErrInvalidFrequencyPair"),
	)
	ErrUnknownPipeline = errors.Normalize(
		"unknown pipeline %s",
		errors.RFCCodeText("CHILES:ErrUnknownPipeline"),
	)
	ErrInvalidCliParameter = errors.Normalize(
		"invalid cli parameter",
		errors.RFCCodeText("CHILES:ErrInvalidCliParameter"),
	)

	// remote store errors
	ErrRemoteStoreUnavailable = errors.Normalize(
		"could not list objects under s3://%s/%s",
		errors.RFCCodeText("CHILES:ErrRemoteStoreUnavailable"),
	)

	// capacity errors
	ErrCapacityRequestFailed = errors.Normalize(
		"capacity request for %d x %s failed",
		errors.RFCCodeText("CHILES:ErrCapacityRequestFailed"),
	)
	ErrReadinessChannel = errors.Normalize(
		"readiness channel %s failed",
		errors.RFCCodeText("CHILES:ErrReadinessChannel"),
	)
	ErrNotEnoughCapacity = errors.Normalize(
		"only %d of %d %s nodes reported ready",
		errors.RFCCodeText("CHILES:ErrNotEnoughCapacity"),
	)

	// graph construction errors
	ErrEmptyNodePool = errors.Normalize(
		"no compute node available to assign %s",
		errors.RFCCodeText("CHILES:ErrEmptyNodePool"),
	)
	ErrDuplicateProducer = errors.Normalize(
		"node %s already has producer %s, cannot add %s",
		errors.RFCCodeText("CHILES:ErrDuplicateProducer"),
	)
	ErrNodeNotFound = errors.Normalize(
		"node %s not found in graph",
		errors.RFCCodeText("CHILES:ErrNodeNotFound"),
	)
	ErrInvalidGraph = errors.Normalize(
		"invalid graph: %s",
		errors.RFCCodeText("CHILES:ErrInvalidGraph"),
	)
	ErrDecodeGraph = errors.Normalize(
		"decode graph failed",
		errors.RFCCodeText("CHILES:ErrDecodeGraph"),
	)

	// submission errors
	ErrSubmitRequest = errors.Normalize(
		"request to %s failed",
		errors.RFCCodeText("CHILES:ErrSubmitRequest"),
	)
	ErrNoNodesRunning = errors.Normalize(
		"no node managers are running behind %s",
		errors.RFCCodeText("CHILES:ErrNoNodesRunning"),
	)
)
