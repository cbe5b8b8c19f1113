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

// Package inspect decodes backend objects for the diagnostic command. It
// never mutates anything and is not needed for a correct mount; it shares
// the entity layouts with the core.
package inspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/appendfs/appendfs/internal/fs/inode"
	"github.com/appendfs/appendfs/internal/storage"
)

// History decodes an entire inode log, oldest generation first.
func History(
	ctx context.Context,
	store storage.ObjectStore,
	ref storage.Ref) (generations []inode.Inode, err error) {
	raw, err := store.Fetch(ctx, ref)
	if err != nil {
		err = fmt.Errorf("fetching inode log %s: %w", ref, err)
		return
	}

	if len(raw)%inode.RecordSize != 0 {
		err = fmt.Errorf(
			"inode log %s: %d bytes is not a whole number of records",
			ref,
			len(raw))
		return
	}

	for off := 0; off < len(raw); off += inode.RecordSize {
		var in inode.Inode
		if in, err = inode.Decode(raw[off : off+inode.RecordSize]); err != nil {
			err = fmt.Errorf("inode log %s, record %d: %w", ref, off/inode.RecordSize, err)
			return
		}

		generations = append(generations, in)
	}

	return
}

// Dir decodes a directory blob.
func Dir(
	ctx context.Context,
	store storage.ObjectStore,
	ref storage.Ref) (entries []inode.DirEntry, err error) {
	raw, err := store.Fetch(ctx, ref)
	if err != nil {
		err = fmt.Errorf("fetching directory blob %s: %w", ref, err)
		return
	}

	return inode.DecodeDir(raw)
}

// Xattrs decodes an xattr dictionary blob.
func Xattrs(
	ctx context.Context,
	store storage.ObjectStore,
	ref storage.Ref) (attrs []inode.Xattr, err error) {
	raw, err := store.Fetch(ctx, ref)
	if err != nil {
		err = fmt.Errorf("fetching xattr blob %s: %w", ref, err)
		return
	}

	return inode.DecodeXattrs(raw)
}

// FormatInode renders one inode generation, one field per line in record
// order.
func FormatInode(in inode.Inode) string {
	var b strings.Builder

	fmt.Fprintf(&b, "mode: %o\n", in.Mode)
	fmt.Fprintf(&b, "uid: %d\n", in.Uid)
	fmt.Fprintf(&b, "gid: %d\n", in.Gid)
	fmt.Fprintf(&b, "size: %d\n", in.Size)
	fmt.Fprintf(&b, "nlink: %d\n", in.Nlink)
	fmt.Fprintf(&b, "atime: seconds: %d nanos: %d\n", in.Atime.Sec, in.Atime.Nsec)
	fmt.Fprintf(&b, "mtime: seconds: %d nanos: %d\n", in.Mtime.Sec, in.Mtime.Nsec)
	fmt.Fprintf(&b, "ctime: seconds: %d nanos: %d\n", in.Ctime.Sec, in.Ctime.Nsec)
	fmt.Fprintf(&b, "type: %s\n", in.Type)
	fmt.Fprintf(&b, "data_ref: %s\n", in.DataRef)
	fmt.Fprintf(&b, "xattr_ref: %s\n", in.XattrRef)

	return b.String()
}
