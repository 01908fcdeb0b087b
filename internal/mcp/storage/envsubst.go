// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"os"
	"regexp"

	"github.com/tombee/mcpool/internal/mcp"
)

// envPlaceholder matches ${VAR} and $VAR references inside config values.
var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnv substitutes environment-variable placeholders in s. Unset
// variables are left literally unchanged rather than blanked, so a config
// shipped with "${API_KEY}" stays recognizable when the variable is missing.
func expandEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPlaceholder.FindStringSubmatch(match)
		name := groups[1]
		if name == "" {
			name = groups[2]
		}
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// expandConfigEnv applies expandEnv to every string value in the config.
func expandConfigEnv(config mcp.ServerConfig) mcp.ServerConfig {
	out := config.Clone()
	out.Command = expandEnv(out.Command)
	out.URL = expandEnv(out.URL)
	for i, arg := range out.Args {
		out.Args[i] = expandEnv(arg)
	}
	for k, v := range out.Env {
		out.Env[k] = expandEnv(v)
	}
	for k, v := range out.Headers {
		out.Headers[k] = expandEnv(v)
	}
	return out
}
