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

// Kind is the variant of a node.
type Kind string

// Node kinds understood by the execution engine.
const (
	KindPlain     Kind = "plain"
	KindApp       Kind = "app"
	KindContainer Kind = "container"
)

// StorageClass is where a plain node keeps its data.
type StorageClass string

// Storage classes.
const (
	StorageS3     StorageClass = "s3"
	StorageFile   StorageClass = "file"
	StorageMemory StorageClass = "memory"
	StorageJSON   StorageClass = "json"
)

// DataSpec holds the fields of plain and container nodes.
type DataSpec struct {
	Storage StorageClass
	// Container is the container implementation, only for KindContainer.
	Container      string
	Bucket         string
	Key            string
	Profile        string
	Dirname        string
	CheckExists    bool
	ExpireAfterUse bool
	Precious       bool
}

// AppSpec holds the fields of app nodes.
type AppSpec struct {
	Class   string
	Image   string
	Command string
	User    string
	// MinFrequency and MaxFrequency are zero when the app is not bound to a
	// sub-band.
	MinFrequency        int
	MaxFrequency        int
	InputErrorThreshold int
}

// Node is one drop of the physical graph. Exactly one of Data and App is set,
// according to Kind.
type Node struct {
	OID  string
	UID  string
	Kind Kind
	// Host is the compute node the drop is deployed on.
	Host string
	Data *DataSpec
	App  *AppSpec
	// Params carries pass-through attributes, such as tags, that are sent to
	// the engine untouched.
	Params map[string]string

	Inputs  []string
	Outputs []string
}

// IsApp reports whether n is an app node.
func (n *Node) IsApp() bool {
	return n.Kind == KindApp
}

func appendUnique(list []string, id string) []string {
	if contains(list, id) {
		return list
	}
	return append(list, id)
}
