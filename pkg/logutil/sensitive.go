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

package logutil

import (
	"regexp"
)

var (
	secretPatterns = `((?i:secret[-_]access[-_]key|session[-_]token)\\?"?\s*[=:]\s*\\?"?)[^"\\\s]*`
	secretRegexp   = regexp.MustCompile(secretPatterns)

	// HideSensitive is used to replace aws secrets with `******` in log.
	HideSensitive = func(input string) string {
		return secretRegexp.ReplaceAllString(input, "${1}******")
	}
)
