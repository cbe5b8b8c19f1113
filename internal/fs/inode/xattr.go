// Copyright 2021 Google Inc. All Rights Reserved.
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

package inode

import (
	"fmt"
)

// Xattr is one extended-attribute pair.
type Xattr struct {
	Name  string
	Value []byte
}

// EncodeXattrs serializes an xattr dictionary blob in the same
// length-prefixed encoding family as directory blobs: uint32 name length,
// name, uint32 value length, value, repeated. Duplicate names within one
// blob are disallowed.
func EncodeXattrs(attrs []Xattr) (b []byte, err error) {
	seen := make(map[string]struct{}, len(attrs))
	for i := range attrs {
		if _, ok := seen[attrs[i].Name]; ok {
			err = fmt.Errorf("duplicate xattr %q", attrs[i].Name)
			return
		}

		seen[attrs[i].Name] = struct{}{}
	}

	for i := range attrs {
		b = appendString(b, attrs[i].Name)
		b = appendString(b, string(attrs[i].Value))
	}

	return
}

// DecodeXattrs parses an xattr dictionary blob, preserving pair order.
func DecodeXattrs(b []byte) (attrs []Xattr, err error) {
	for len(b) > 0 {
		var name, value string

		name, b, err = consumeString(b)
		if err != nil {
			err = fmt.Errorf("xattr blob: %w", err)
			return
		}

		value, b, err = consumeString(b)
		if err != nil {
			err = fmt.Errorf("xattr blob: value of %q: %w", name, err)
			return
		}

		attrs = append(attrs, Xattr{Name: name, Value: []byte(value)})
	}

	return
}
