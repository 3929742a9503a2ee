/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package json encodes without HTML escaping, so error messages and route
// patterns render as written.
package json

import (
	"bytes"
	"encoding/json"
)

// Marshal encodes v without escaping &, < and >.
func Marshal(v interface{}) ([]byte, error) {
	return encode(v, "")
}

// MarshalIndent is Marshal with two-space indentation.
func MarshalIndent(v interface{}) ([]byte, error) {
	return encode(v, "  ")
}

func encode(v interface{}, indent string) ([]byte, error) {
	var byteBuf bytes.Buffer
	encoder := json.NewEncoder(&byteBuf)
	encoder.SetEscapeHTML(false)
	if indent != "" {
		encoder.SetIndent("", indent)
	}
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	// Encode terminates the document with a newline
	return bytes.TrimSuffix(byteBuf.Bytes(), []byte("\n")), nil
}

func Unmarshal(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}
