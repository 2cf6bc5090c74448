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

package graphbuilder

// App classes instantiated by the execution engine on the node managers.
const (
	ClassCopyFromS3          = "aws_chiles02.apps_general.CopyFromS3"
	ClassCopyAllFromS3Folder = "aws_chiles02.apps_general.CopyAllFromS3Folder"
	ClassCopyToS3            = "aws_chiles02.apps_general.CopyToS3"
	ClassCopyLogFiles        = "aws_chiles02.apps_general.CopyLogFilesApp"
	ClassBarrier             = "aws_chiles02.apps_general.Chiles02BarrierAppDROP"
	ClassBashShell           = "dfms.apps.bash_shell_app.BashShellApp"
	ClassMsTransform         = "aws_chiles02.apps_mstransform.DockerMsTransform"
	ClassClean               = "aws_chiles02.apps_clean.DockerClean"
	ClassConcatenate         = "aws_chiles02.apps_concatenate.DockerImageconcat"
	ClassJpeg2000            = "aws_chiles02.apps_jpeg2000.DockerJpeg2000"
	ClassStats               = "aws_chiles02.apps_stats.DockerStats"

	ContainerDirectory = "dfms.drop.DirectoryContainer"
)

const (
	defaultUser                = "ec2-user"
	defaultInputErrorThreshold = 100
	shutdownCommand            = `sudo shutdown -h +5 "DFMS node shutting down" &`
)
