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

package mcp

import "strings"

// RedactedValue replaces sensitive values in sanitized configs.
const RedactedValue = "***REDACTED***"

// sensitiveKeyPatterns are substrings that mark a key as carrying a secret.
var sensitiveKeyPatterns = []string{
	"auth", "key", "token", "secret", "password", "credential",
}

// IsSensitiveKey reports whether a field name, header key, or flag appears to
// carry sensitive data.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Sanitize returns a copy of config with secret values replaced by
// RedactedValue. The input is never mutated. Sanitize is applied at the read
// boundary only: stored configs keep their secrets intact.
//
// For remote configs every sensitive header value is redacted. For stdio
// configs sensitive environment values are redacted, and two argument
// patterns are handled: a sensitive flag followed by a non-flag value token
// (the value is redacted), and a single "key:value" token whose key part is
// sensitive (only the value part is redacted).
func Sanitize(config ServerConfig) ServerConfig {
	out := config.Clone()

	for k := range out.Headers {
		if IsSensitiveKey(k) {
			out.Headers[k] = RedactedValue
		}
	}

	for k := range out.Env {
		if IsSensitiveKey(k) {
			out.Env[k] = RedactedValue
		}
	}

	out.Args = sanitizeArgs(out.Args)
	return out
}

func sanitizeArgs(args []string) []string {
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--api-key value": redact and consume the following value token.
		if isFlag(arg) && IsSensitiveKey(arg) {
			if i+1 < len(args) && !isFlag(args[i+1]) {
				args[i+1] = RedactedValue
				i++
			}
			continue
		}

		// "authorization:secret": redact the part after the colon.
		if before, _, found := strings.Cut(arg, ":"); found && IsSensitiveKey(before) {
			args[i] = before + ":" + RedactedValue
		}
	}
	return args
}

func isFlag(arg string) bool {
	return strings.HasPrefix(arg, "-")
}
