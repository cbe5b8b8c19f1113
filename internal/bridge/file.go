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

package bridge

import (
	"fmt"

	"github.com/appendfs/appendfs/internal/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
)

// fileHandle is the open-file object handed back from Open and Create. The
// core keeps no per-handle state, so the handle just pins the path and the
// opening caller's identity; every I/O is a fresh core operation.
type fileHandle struct {
	nodefs.File

	core   *fs.FileSystem
	path   string
	caller fs.Caller
}

func newFileHandle(core *fs.FileSystem, path string, caller fs.Caller) nodefs.File {
	return &fileHandle{
		File:   nodefs.NewDefaultFile(),
		core:   core,
		path:   path,
		caller: caller,
	}
}

func (f *fileHandle) String() string {
	return fmt.Sprintf("fileHandle(%s)", f.path)
}

func (f *fileHandle) Read(
	dest []byte,
	off int64) (fuse.ReadResult, fuse.Status) {
	data, err := f.core.Read(bg(), f.caller, f.path, len(dest), off)
	if err != nil {
		return nil, done("read", f.path, err)
	}

	return fuse.ReadResultData(data), done("read", f.path, nil)
}

func (f *fileHandle) Write(
	data []byte,
	off int64) (uint32, fuse.Status) {
	n, err := f.core.Write(bg(), f.caller, f.path, data, off)
	if err != nil {
		return 0, done("write", f.path, err)
	}

	return uint32(n), done("write", f.path, nil)
}

func (f *fileHandle) Truncate(size uint64) fuse.Status {
	return done("ftruncate", f.path,
		f.core.Truncate(bg(), f.caller, f.path, size))
}

func (f *fileHandle) GetAttr(out *fuse.Attr) fuse.Status {
	in, err := f.core.GetAttr(bg(), f.caller, f.path)
	if err != nil {
		return done("fgetattr", f.path, err)
	}

	fillAttr(in, out)
	return done("fgetattr", f.path, nil)
}

func (f *fileHandle) Flush() fuse.Status {
	return done("flush", f.path,
		f.core.Flush(bg(), f.caller, f.path))
}

func (f *fileHandle) Fsync(flags int) fuse.Status {
	return done("fsync", f.path,
		f.core.Fsync(bg(), f.caller, f.path))
}

func (f *fileHandle) Release() {
}
