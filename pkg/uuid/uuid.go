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

package uuid

import (
	"fmt"

	guuid "github.com/google/uuid"
)

// Generator defines an interface that can generate a uuid
type Generator interface {
	NewString() string
}

type generatorImpl struct{}

func (g *generatorImpl) NewString() string {
	return guuid.New().String()
}

// NewGenerator creates a generator backed by random (v4) uuids.
func NewGenerator() Generator {
	return &generatorImpl{}
}

// IsValid reports whether s parses as a uuid.
func IsValid(s string) bool {
	_, err := guuid.Parse(s)
	return err == nil
}

// SequenceGenerator produces "{prefix}-{%08d}" strings. It is used to get
// reproducible graph dumps.
type SequenceGenerator struct {
	prefix string
	next   int
}

// NewSequenceGenerator creates a SequenceGenerator starting at 1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix, next: 1}
}

// NewString implements Generator.NewString
func (g *SequenceGenerator) NewString() string {
	s := fmt.Sprintf("%s-%08d", g.prefix, g.next)
	g.next++
	return s
}
