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
	"sort"

	"github.com/pingcap/errors"
)

// Class groups errors by what an operator should do about them.
type Class string

// Error classes reported by the cli.
const (
	ClassConfiguration Class = "configuration"
	ClassRemoteStore   Class = "remote-store"
	ClassCapacity      Class = "capacity"
	ClassGraph         Class = "graph"
	ClassSubmission    Class = "submission"
	ClassUnknown       Class = "unknown"
)

var classes = map[Class][]*errors.Error{
	ClassConfiguration: {
		ErrInvalidConfig, ErrDecodeConfigFile, ErrMissingCredentials,
		ErrInvalidFrequencyRange, ErrInvalidFrequencyPair, ErrUnknownPipeline,
		ErrInvalidCliParameter,
	},
	ClassRemoteStore: {ErrRemoteStoreUnavailable},
	ClassCapacity:    {ErrCapacityRequestFailed, ErrReadinessChannel, ErrNotEnoughCapacity},
	ClassGraph: {
		ErrEmptyNodePool, ErrDuplicateProducer, ErrNodeNotFound,
		ErrInvalidGraph, ErrDecodeGraph,
	},
	ClassSubmission: {ErrSubmitRequest, ErrNoNodesRunning},
}

// Hint returns the operator facing advice for the class.
func (c Class) Hint() string {
	switch c {
	case ClassConfiguration:
		return "fix the configuration and run again"
	case ClassRemoteStore, ClassCapacity, ClassSubmission:
		return "transient condition, rerun later"
	case ClassGraph:
		return "the graph could not be built from the current inputs"
	default:
		return "unexpected failure"
	}
}

// Doc documents one normalized error.
type Doc struct {
	Code    string
	Message string
	Class   Class
}

// Docs returns the documentation of every classified error, sorted by code.
func Docs() []Doc {
	var docs []Doc
	for class, list := range classes {
		for _, e := range list {
			docs = append(docs, Doc{
				Code:    string(e.RFCCode()),
				Message: e.MessageTemplate(),
				Class:   class,
			})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Code < docs[j].Code })
	return docs
}

// WrapError wraps err with the given normalized error. It returns nil if err is nil.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}

// RFCCode returns the RFC code of the outermost normalized error in the chain.
func RFCCode(err error) (errors.RFCErrorCode, bool) {
	for err != nil {
		if terr, ok := err.(*errors.Error); ok {
			return terr.RFCCode(), true
		}
		err = next(err)
	}
	return "", false
}

// Is reports whether any error in err's chain carries the RFC code of target.
// Both Cause and Unwrap chains are followed.
func Is(err error, target *errors.Error) bool {
	for err != nil {
		if terr, ok := err.(*errors.Error); ok && terr.RFCCode() == target.RFCCode() {
			return true
		}
		err = next(err)
	}
	return false
}

// Classify returns the class of the outermost known error in err's chain.
func Classify(err error) Class {
	for err != nil {
		if terr, ok := err.(*errors.Error); ok {
			for class, list := range classes {
				for _, target := range list {
					if terr.RFCCode() == target.RFCCode() {
						return class
					}
				}
			}
		}
		err = next(err)
	}
	return ClassUnknown
}

func next(err error) error {
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return e.Unwrap()
	case interface{ Cause() error }:
		return e.Cause()
	default:
		return nil
	}
}
