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

package graph

import (
	"fmt"

	"github.com/goccy/go-json"
	cerrors "github.com/icrar/chiles02/pkg/errors"
	"github.com/pingcap/errors"
)

// record is the wire form of a node: one flat JSON object per drop.
type record struct {
	OID       string       `json:"oid"`
	UID       string       `json:"uid"`
	Type      Kind         `json:"type"`
	Node      string       `json:"node,omitempty"`
	App       string       `json:"app,omitempty"`
	Storage   StorageClass `json:"storage,omitempty"`
	Container string       `json:"container,omitempty"`

	Bucket         string `json:"bucket,omitempty"`
	Key            string `json:"key,omitempty"`
	ProfileName    string `json:"profile_name,omitempty"`
	Dirname        string `json:"dirname,omitempty"`
	CheckExists    *bool  `json:"check_exists,omitempty"`
	ExpireAfterUse *bool  `json:"expireAfterUse,omitempty"`
	Precious       *bool  `json:"precious,omitempty"`

	Image               string `json:"image,omitempty"`
	Command             string `json:"command,omitempty"`
	User                string `json:"user,omitempty"`
	MinFrequency        *int   `json:"min_frequency,omitempty"`
	MaxFrequency        *int   `json:"max_frequency,omitempty"`
	InputErrorThreshold *int   `json:"input_error_threshold,omitempty"`

	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

var recordFields = map[string]struct{}{
	"oid": {}, "uid": {}, "type": {}, "node": {}, "app": {}, "storage": {},
	"container": {}, "bucket": {}, "key": {}, "profile_name": {}, "dirname": {},
	"check_exists": {}, "expireAfterUse": {}, "precious": {}, "image": {},
	"command": {}, "user": {}, "min_frequency": {}, "max_frequency": {},
	"input_error_threshold": {}, "inputs": {}, "outputs": {},
}

func toRecord(n *Node) record {
	r := record{
		OID:     n.OID,
		UID:     n.UID,
		Type:    n.Kind,
		Node:    n.Host,
		Inputs:  n.Inputs,
		Outputs: n.Outputs,
	}
	if r.Inputs == nil {
		r.Inputs = []string{}
	}
	if r.Outputs == nil {
		r.Outputs = []string{}
	}
	if d := n.Data; d != nil {
		r.Storage = d.Storage
		r.Container = d.Container
		r.Bucket = d.Bucket
		r.Key = d.Key
		r.ProfileName = d.Profile
		r.Dirname = d.Dirname
		r.CheckExists = &d.CheckExists
		r.ExpireAfterUse = &d.ExpireAfterUse
		r.Precious = &d.Precious
	}
	if a := n.App; a != nil {
		r.App = a.Class
		r.Image = a.Image
		r.Command = a.Command
		r.User = a.User
		if a.MinFrequency != 0 || a.MaxFrequency != 0 {
			r.MinFrequency = &a.MinFrequency
			r.MaxFrequency = &a.MaxFrequency
		}
		r.InputErrorThreshold = &a.InputErrorThreshold
	}
	return r
}

func fromRecord(r *record) *Node {
	n := &Node{
		OID:     r.OID,
		UID:     r.UID,
		Kind:    r.Type,
		Host:    r.Node,
		Inputs:  r.Inputs,
		Outputs: r.Outputs,
	}
	if len(n.Inputs) == 0 {
		n.Inputs = nil
	}
	if len(n.Outputs) == 0 {
		n.Outputs = nil
	}
	if r.Type == KindApp {
		n.App = &AppSpec{
			Class:   r.App,
			Image:   r.Image,
			Command: r.Command,
			User:    r.User,
		}
		if r.MinFrequency != nil {
			n.App.MinFrequency = *r.MinFrequency
		}
		if r.MaxFrequency != nil {
			n.App.MaxFrequency = *r.MaxFrequency
		}
		if r.InputErrorThreshold != nil {
			n.App.InputErrorThreshold = *r.InputErrorThreshold
		}
		return n
	}
	n.Data = &DataSpec{
		Storage:   r.Storage,
		Container: r.Container,
		Bucket:    r.Bucket,
		Key:       r.Key,
		Profile:   r.ProfileName,
		Dirname:   r.Dirname,
	}
	if r.CheckExists != nil {
		n.Data.CheckExists = *r.CheckExists
	}
	if r.ExpireAfterUse != nil {
		n.Data.ExpireAfterUse = *r.ExpireAfterUse
	}
	if r.Precious != nil {
		n.Data.Precious = *r.Precious
	}
	return n
}

// MarshalNode encodes one node as a flat JSON object. Params are merged into
// the object; a param never overrides a typed field.
func MarshalNode(n *Node) ([]byte, error) {
	raw, err := json.Marshal(toRecord(n))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(n.Params) == 0 {
		return raw, nil
	}
	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, errors.Trace(err)
	}
	for k, v := range n.Params {
		if _, ok := recordFields[k]; ok {
			continue
		}
		flat[k] = v
	}
	raw, err = json.Marshal(flat)
	return raw, errors.Trace(err)
}

// Marshal encodes g in the submission format: a JSON list of flat node
// records, in node order.
func Marshal(g *Graph) ([]byte, error) {
	list := make([]json.RawMessage, 0, g.Len())
	for _, n := range g.Nodes() {
		raw, err := MarshalNode(n)
		if err != nil {
			return nil, err
		}
		list = append(list, raw)
	}
	raw, err := json.Marshal(list)
	return raw, errors.Trace(err)
}

// MarshalIndent is like Marshal with indentation, for humans.
func MarshalIndent(g *Graph) ([]byte, error) {
	raw, err := Marshal(g)
	if err != nil {
		return nil, err
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.Trace(err)
	}
	raw, err = json.MarshalIndent(list, "", "  ")
	return raw, errors.Trace(err)
}

// Unmarshal decodes the submission format. Attributes that are not typed
// fields are kept in Params as strings. The decoded graph has consistent
// edges but Barrier is left empty.
func Unmarshal(data []byte) (*Graph, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, cerrors.WrapError(cerrors.ErrDecodeGraph, err)
	}
	g := New()
	for _, raw := range list {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, cerrors.WrapError(cerrors.ErrDecodeGraph, err)
		}
		var extra map[string]interface{}
		if err := json.Unmarshal(raw, &extra); err != nil {
			return nil, cerrors.WrapError(cerrors.ErrDecodeGraph, err)
		}
		n := fromRecord(&r)
		for k, v := range extra {
			if _, ok := recordFields[k]; ok {
				continue
			}
			if n.Params == nil {
				n.Params = make(map[string]string)
			}
			n.Params[k] = fmt.Sprint(v)
		}
		if err := g.Add(n); err != nil {
			return nil, err
		}
	}
	if err := g.checkEdges(); err != nil {
		return nil, err
	}
	return g, nil
}
