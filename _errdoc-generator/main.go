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

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	cerrors "github.com/icrar/chiles02/pkg/errors"
)

type spec struct {
	Code        string
	Error       string `toml:"error"`
	Description string `toml:"description"`
	Workaround  string `toml:"workaround"`
}

func main() {
	var outpath string
	flag.StringVar(&outpath, "output", "", "Specify the error documentation output file path")
	flag.Parse()
	if outpath == "" {
		println("Usage: ./_errdoc-generator --output /path/to/errors.toml")
		os.Exit(1)
	}

	// Descriptions and workarounds edited by hand survive regeneration.
	existDefinition := map[string]spec{}
	if file, err := os.ReadFile(outpath); err == nil {
		if err = toml.Unmarshal(file, &existDefinition); err != nil {
			println(fmt.Sprintf("Invalid toml file %s when merging exists description/workaround: %v", outpath, err))
			os.Exit(1)
		}
	}

	buffer := bytes.NewBufferString("# AUTOGENERATED BY github.com/icrar/chiles02/_errdoc-generator\n" +
		"# YOU CAN CHANGE THE 'description'/'workaround' FIELDS IF THEM ARE IMPROPER.\n\n")
	for _, doc := range cerrors.Docs() {
		s := spec{
			Code:        doc.Code,
			Error:       doc.Message,
			Description: fmt.Sprintf("%s error", doc.Class),
			Workaround:  doc.Class.Hint(),
		}
		if exist, found := existDefinition[s.Code]; found {
			if d := strings.TrimSpace(exist.Description); d != "" {
				s.Description = d
			}
			if w := strings.TrimSpace(exist.Workaround); w != "" {
				s.Workaround = w
			}
		}
		buffer.WriteString(fmt.Sprintf("[\"%s\"]\nerror = '''\n%s\n'''\n", s.Code, s.Error))
		buffer.WriteString(fmt.Sprintf("description = '''\n%s\n'''\n", s.Description))
		buffer.WriteString(fmt.Sprintf("workaround = '''\n%s\n'''\n\n", s.Workaround))
	}
	if err := os.WriteFile(outpath, buffer.Bytes(), 0o644); err != nil {
		panic(err)
	}
}
