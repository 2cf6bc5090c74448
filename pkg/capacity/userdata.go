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

package capacity

import (
	"bytes"
	"strings"
	"text/template"

	cerrors "github.com/icrar/chiles02/pkg/errors"
)

// Role is what a provisioned instance runs.
type Role string

// Roles.
const (
	RoleNodeManager       Role = "node-manager"
	RoleDataIslandManager Role = "data-island-manager"
)

// Bootstrap describes the payload an instance runs on first boot. The
// instance starts its manager and then announces itself on the readiness
// queue, tagged with the correlation id.
type Bootstrap struct {
	Role           Role
	Region         string
	QueueURL       string
	CorrelationID  string
	Volume         string
	LogLevel       string
	MaxRequestSize int
	// Hosts are the node managers a data island manager drives.
	Hosts []string
	// NeedNodeManager also starts a node manager next to a data island
	// manager.
	NeedNodeManager bool
}

var userDataTemplate = template.Must(template.New("user-data").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(`#!/bin/bash -vx
# {{ .Role }}
set -o pipefail

mkdir -p {{ .Volume }}
chmod -R 0777 {{ .Volume }}
cd /home/ec2-user/dfms
{{- if eq .Role "node-manager" }}
runuser -l ec2-user -c 'cd /home/ec2-user/dfms && source /home/ec2-user/virtualenv/dfms/bin/activate && dfmsNM -H 0.0.0.0 -d --dfms-path=/home/ec2-user/aws-chiles02/pipeline --max-request-size {{ .MaxRequestSize }} -{{ .LogLevel }}'
{{- else }}
{{- if .NeedNodeManager }}
runuser -l ec2-user -c 'cd /home/ec2-user/dfms && source /home/ec2-user/virtualenv/dfms/bin/activate && dfmsNM -H 0.0.0.0 -d --dfms-path=/home/ec2-user/aws-chiles02/pipeline --max-request-size {{ .MaxRequestSize }} -{{ .LogLevel }}'
{{- end }}
runuser -l ec2-user -c 'cd /home/ec2-user/dfms && source /home/ec2-user/virtualenv/dfms/bin/activate && dfmsDIM -H 0.0.0.0 -d --nodes {{ join .Hosts "," }} -{{ .LogLevel }}'
{{- end }}

INSTANCE_TYPE=$(curl -s http://169.254.169.254/latest/meta-data/instance-type)
IP_ADDRESS=$(curl -s http://169.254.169.254/latest/meta-data/local-ipv4)
aws sqs send-message --region {{ .Region }} --queue-url {{ .QueueURL }} \
  --message-body "{\"instance_type\": \"${INSTANCE_TYPE}\", \"ip_address\": \"${IP_ADDRESS}\"}" \
  --message-attributes '{"uuid": {"DataType": "String", "StringValue": "{{ .CorrelationID }}"}}'
`))

// RenderUserData renders the first boot script of b.
func RenderUserData(b Bootstrap) (string, error) {
	if b.CorrelationID == "" || b.QueueURL == "" {
		return "", cerrors.ErrInvalidConfig.GenWithStackByArgs("user data needs a correlation id and a queue url")
	}
	if b.Role == RoleDataIslandManager && len(b.Hosts) == 0 {
		return "", cerrors.ErrInvalidConfig.GenWithStackByArgs("a data island manager needs node managers")
	}
	if b.LogLevel == "" {
		b.LogLevel = "v"
	}
	if b.MaxRequestSize <= 0 {
		b.MaxRequestSize = 10
	}
	if b.Volume == "" {
		b.Volume = "/mnt/dfms/dfms_root"
	}
	var buf bytes.Buffer
	if err := userDataTemplate.Execute(&buf, b); err != nil {
		return "", cerrors.WrapError(cerrors.ErrInvalidConfig, err, "render user data")
	}
	return buf.String(), nil
}

// UserData returns a UserDataFunc rendering b with the round's correlation id.
func UserData(b Bootstrap) UserDataFunc {
	return func(correlationID string) (string, error) {
		b.CorrelationID = correlationID
		return RenderUserData(b)
	}
}
