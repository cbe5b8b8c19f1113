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

// Package inode defines the durable entities of the filesystem: the
// fixed-size inode record, the append-only inode log it lives in, and the
// directory and xattr blob encodings that inodes point at.
package inode

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/appendfs/appendfs/internal/storage"
)

// Type distinguishes what an inode describes. All type-specific behavior
// dispatches on this tag.
type Type uint32

const (
	Dir Type = iota
	File
	Symlink
)

func (t Type) String() string {
	switch t {
	case Dir:
		return "DIR"
	case File:
		return "FILE"
	case Symlink:
		return "SYM"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// Timespec is a fixed-width timestamp, seconds plus nanoseconds.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// TimespecOf converts a time.Time for embedding in a record.
func TimespecOf(t time.Time) Timespec {
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Time converts back to a time.Time in the local zone.
func (ts Timespec) Time() time.Time {
	return time.Unix(ts.Sec, ts.Nsec)
}

// RecordSize is the encoded width of one inode record. Inode logs contain a
// whole number of records, so the latest inode of a node is always the last
// RecordSize bytes of its log.
const RecordSize = 4 + // Mode
	4 + // Uid
	4 + // Gid
	8 + // Size
	4 + // Nlink
	16 + // Atime
	16 + // Mtime
	16 + // Ctime
	4 + // Type
	storage.RefSize + // DataRef
	storage.RefSize // XattrRef

// Inode is one snapshot of a node's metadata. Mutating a node always means
// appending a whole new snapshot; records are never edited in place.
//
// DataRef points at the node's data blob: the file contents for File, the
// serialized directory blob for Dir, the literal target string for Symlink.
// XattrRef points at the serialized xattr dictionary. Files get an empty
// dictionary when created; directories and symlinks have a zero XattrRef
// until their first xattr is set.
type Inode struct {
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Size  uint64
	Nlink uint32

	Atime Timespec
	Mtime Timespec
	Ctime Timespec

	Type     Type
	DataRef  storage.Ref
	XattrRef storage.Ref
}

// Encode lays the record out for appending to an inode log. Fields appear
// in declaration order, little-endian.
func (in *Inode) Encode() []byte {
	b := make([]byte, RecordSize)
	off := 0

	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(b[off:], v)
		off += 4
	}
	put64 := func(v uint64) {
		binary.LittleEndian.PutUint64(b[off:], v)
		off += 8
	}
	putTime := func(ts Timespec) {
		put64(uint64(ts.Sec))
		put64(uint64(ts.Nsec))
	}

	put32(in.Mode)
	put32(in.Uid)
	put32(in.Gid)
	put64(in.Size)
	put32(in.Nlink)
	putTime(in.Atime)
	putTime(in.Mtime)
	putTime(in.Ctime)
	put32(uint32(in.Type))

	off += copy(b[off:], in.DataRef[:])
	copy(b[off:], in.XattrRef[:])

	return b
}

// Decode parses exactly one record.
func Decode(b []byte) (in Inode, err error) {
	if len(b) != RecordSize {
		err = fmt.Errorf("inode record: got %d bytes, want %d", len(b), RecordSize)
		return
	}

	off := 0
	get32 := func() uint32 {
		v := binary.LittleEndian.Uint32(b[off:])
		off += 4
		return v
	}
	get64 := func() uint64 {
		v := binary.LittleEndian.Uint64(b[off:])
		off += 8
		return v
	}
	getTime := func() Timespec {
		sec := int64(get64())
		nsec := int64(get64())
		return Timespec{Sec: sec, Nsec: nsec}
	}

	in.Mode = get32()
	in.Uid = get32()
	in.Gid = get32()
	in.Size = get64()
	in.Nlink = get32()
	in.Atime = getTime()
	in.Mtime = getTime()
	in.Ctime = getTime()
	in.Type = Type(get32())

	off += copy(in.DataRef[:], b[off:off+storage.RefSize])
	copy(in.XattrRef[:], b[off:off+storage.RefSize])

	return
}
