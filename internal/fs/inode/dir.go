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
	"encoding/binary"
	"fmt"

	"github.com/appendfs/appendfs/internal/storage"
)

// DirEntry names one child of a directory. Node is the ref of the child's
// inode log.
type DirEntry struct {
	Name string
	Node storage.Ref
}

// EncodeDir serializes a directory blob: for each entry, a little-endian
// uint32 name length, the name bytes, then the child's 32-byte log ref.
// An empty directory encodes to an empty body.
//
// Entries must have pairwise distinct, non-empty, slash-free names; callers
// own that invariant and this function checks it.
func EncodeDir(entries []DirEntry) (b []byte, err error) {
	seen := make(map[string]struct{}, len(entries))
	for i := range entries {
		if err = checkName(entries[i].Name); err != nil {
			return
		}

		if _, ok := seen[entries[i].Name]; ok {
			err = fmt.Errorf("duplicate directory entry %q", entries[i].Name)
			return
		}

		seen[entries[i].Name] = struct{}{}
	}

	for i := range entries {
		b = appendString(b, entries[i].Name)
		b = append(b, entries[i].Node[:]...)
	}

	return
}

// DecodeDir parses a directory blob, preserving entry order.
func DecodeDir(b []byte) (entries []DirEntry, err error) {
	for len(b) > 0 {
		var name string
		name, b, err = consumeString(b)
		if err != nil {
			err = fmt.Errorf("directory blob: %w", err)
			return
		}

		if len(b) < storage.RefSize {
			err = fmt.Errorf("directory blob: entry %q truncated", name)
			return
		}

		var e DirEntry
		e.Name = name
		copy(e.Node[:], b[:storage.RefSize])
		b = b[storage.RefSize:]

		entries = append(entries, e)
	}

	return
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("empty directory entry name")
	}

	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return fmt.Errorf("directory entry name %q contains a slash", name)
		}
	}

	return nil
}

func appendString(b []byte, s string) []byte {
	var lp [4]byte
	binary.LittleEndian.PutUint32(lp[:], uint32(len(s)))
	b = append(b, lp[:]...)
	b = append(b, s...)
	return b
}

func consumeString(b []byte) (s string, rest []byte, err error) {
	if len(b) < 4 {
		err = fmt.Errorf("truncated length prefix")
		return
	}

	n := binary.LittleEndian.Uint32(b)
	b = b[4:]

	if uint32(len(b)) < n {
		err = fmt.Errorf("string of %d bytes in %d-byte remainder", n, len(b))
		return
	}

	s = string(b[:n])
	rest = b[n:]
	return
}
