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

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DeriveID computes a stable, content-addressed identifier for a named server
// configuration. Two processes loading the same default config file agree on
// the same id for the same logical server without coordination.
//
// The {name, config} pair is serialized to canonical JSON (object keys sorted
// recursively, array order preserved), hashed with SHA-256, and the first 32
// hex characters are laid out as UUID-v4 text so the result is accepted
// anywhere a UUID column or validator is involved. The version nibble is
// forced to 4 and the variant nibble into {8, 9, a, b}.
//
// DeriveID must only be used for file-origin records. Database-origin records
// keep their caller-assigned random ids; the hybrid store relies on that
// distinction to tell mirrored file records apart from user records.
func DeriveID(name string, config ServerConfig) string {
	canon, err := canonicalJSON(struct {
		Name   string       `json:"name"`
		Config ServerConfig `json:"config"`
	}{Name: name, Config: config})
	if err != nil {
		// ServerConfig contains only strings, slices, and string maps, so
		// marshalling cannot fail in practice.
		panic(fmt.Sprintf("mcp: canonical serialization failed: %v", err))
	}

	sum := sha256.Sum256(canon)
	h := hex.EncodeToString(sum[:])[:32]

	version := "4"
	variant := forceVariant(h[16])

	return strings.Join([]string{
		h[0:8],
		h[8:12],
		version + h[13:16],
		variant + h[17:20],
		h[20:32],
	}, "-")
}

// forceVariant maps an arbitrary hex digit into the RFC 4122 variant range
// {8, 9, a, b}, preserving the low two bits of the original digit.
func forceVariant(c byte) string {
	n, err := strconv.ParseUint(string(c), 16, 8)
	if err != nil {
		return "8"
	}
	return strconv.FormatUint((n&0x3)|0x8, 16)
}

// canonicalJSON serializes v with all object keys sorted lexicographically at
// every nesting level. Round-tripping through interface{} discards struct
// field order; encoding/json then emits map keys in sorted order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
