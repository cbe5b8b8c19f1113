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

// Package bridge adapts the core to go-fuse's path-addressed filesystem
// API. Each kernel request arrives with the calling process's identity,
// which the bridge forwards into every core operation; the bridge itself
// holds no filesystem state.
package bridge

import (
	"context"
	"syscall"
	"time"

	"github.com/appendfs/appendfs/internal/fs"
	"github.com/appendfs/appendfs/internal/fs/inode"
	"github.com/appendfs/appendfs/internal/logger"
	"github.com/appendfs/appendfs/internal/monitor"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
)

// maxPathLen bounds the path given to GetAttr and the new name given to
// Rename. Other callbacks, and xattr names, are passed to the core without
// a length check.
const maxPathLen = 4096

// FileSystem implements pathfs.FileSystem over a core fs.FileSystem.
// Operations the core does not support fall through to the embedded
// default implementation, which answers ENOSYS.
type FileSystem struct {
	pathfs.FileSystem

	core *fs.FileSystem
}

// New wraps a core filesystem for mounting.
func New(core *fs.FileSystem) *FileSystem {
	return &FileSystem{
		FileSystem: pathfs.NewDefaultFileSystem(),
		core:       core,
	}
}

func (b *FileSystem) String() string {
	return "appendfs"
}

func callerOf(context *fuse.Context) fs.Caller {
	return fs.Caller{Uid: context.Uid, Gid: context.Gid}
}

// done translates a core result to a fuse status, recording it on the way
// out.
func done(op string, path string, err error) fuse.Status {
	errno := fs.AsErrno(err)
	monitor.RecordOp(op, errno)

	if err == nil {
		logger.Tracef("%s %q: OK", op, path)
		return fuse.OK
	}

	logger.Tracef("%s %q: %v", op, path, err)
	return fuse.ToStatus(errno)
}

func fillAttr(in inode.Inode, out *fuse.Attr) {
	out.Mode = in.Mode
	out.Nlink = in.Nlink
	out.Uid = in.Uid
	out.Gid = in.Gid
	out.Size = in.Size
	out.Blocks = (in.Size + 511) / 512

	out.Atime = uint64(in.Atime.Sec)
	out.Atimensec = uint32(in.Atime.Nsec)
	out.Mtime = uint64(in.Mtime.Sec)
	out.Mtimensec = uint32(in.Mtime.Nsec)
	out.Ctime = uint64(in.Ctime.Sec)
	out.Ctimensec = uint32(in.Ctime.Nsec)
}

////////////////////////////////////////////////////////////////////////
// Attributes
////////////////////////////////////////////////////////////////////////

func (b *FileSystem) GetAttr(
	name string,
	context *fuse.Context) (*fuse.Attr, fuse.Status) {
	if len(name) > maxPathLen {
		return nil, fuse.Status(syscall.ENAMETOOLONG)
	}

	in, err := b.core.GetAttr(bg(), callerOf(context), name)
	if err != nil {
		return nil, done("getattr", name, err)
	}

	var attr fuse.Attr
	fillAttr(in, &attr)
	return &attr, done("getattr", name, nil)
}

func (b *FileSystem) Chmod(
	name string,
	mode uint32,
	context *fuse.Context) fuse.Status {
	return done("chmod", name,
		b.core.Chmod(bg(), callerOf(context), name, mode))
}

func (b *FileSystem) Chown(
	name string,
	uid uint32,
	gid uint32,
	context *fuse.Context) fuse.Status {
	return done("chown", name,
		b.core.Chown(bg(), callerOf(context), name, uid, gid))
}

func (b *FileSystem) Utimens(
	name string,
	atime *time.Time,
	mtime *time.Time,
	context *fuse.Context) fuse.Status {
	return done("utimens", name,
		b.core.Utimens(bg(), callerOf(context), name, atime, mtime))
}

func (b *FileSystem) Truncate(
	name string,
	size uint64,
	context *fuse.Context) fuse.Status {
	return done("truncate", name,
		b.core.Truncate(bg(), callerOf(context), name, size))
}

func (b *FileSystem) Access(
	name string,
	mode uint32,
	context *fuse.Context) fuse.Status {
	return done("access", name,
		b.core.Access(bg(), callerOf(context), name, mode))
}

////////////////////////////////////////////////////////////////////////
// Tree structure
////////////////////////////////////////////////////////////////////////

func (b *FileSystem) Mkdir(
	name string,
	mode uint32,
	context *fuse.Context) fuse.Status {
	return done("mkdir", name,
		b.core.MkDir(bg(), callerOf(context), name, mode))
}

func (b *FileSystem) Rmdir(
	name string,
	context *fuse.Context) fuse.Status {
	return done("rmdir", name,
		b.core.RmDir(bg(), callerOf(context), name))
}

func (b *FileSystem) Unlink(
	name string,
	context *fuse.Context) fuse.Status {
	return done("unlink", name,
		b.core.Unlink(bg(), callerOf(context), name))
}

func (b *FileSystem) Rename(
	oldName string,
	newName string,
	context *fuse.Context) fuse.Status {
	if len(newName) > maxPathLen {
		return fuse.Status(syscall.ENAMETOOLONG)
	}

	return done("rename", oldName,
		b.core.Rename(bg(), callerOf(context), oldName, newName))
}

func (b *FileSystem) Link(
	oldName string,
	newName string,
	context *fuse.Context) fuse.Status {
	return done("link", oldName,
		b.core.Link(bg(), callerOf(context), oldName, newName))
}

func (b *FileSystem) Symlink(
	value string,
	linkName string,
	context *fuse.Context) fuse.Status {
	return done("symlink", linkName,
		b.core.SymLink(bg(), callerOf(context), value, linkName))
}

func (b *FileSystem) Readlink(
	name string,
	context *fuse.Context) (string, fuse.Status) {
	target, err := b.core.ReadLink(bg(), callerOf(context), name)
	return target, done("readlink", name, err)
}

func (b *FileSystem) OpenDir(
	name string,
	context *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	entries, err := b.core.ReadDir(bg(), callerOf(context), name)
	if err != nil {
		return nil, done("readdir", name, err)
	}

	stream := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		stream = append(stream, fuse.DirEntry{Name: e.Name})
	}

	return stream, done("readdir", name, nil)
}

////////////////////////////////////////////////////////////////////////
// Files
////////////////////////////////////////////////////////////////////////

func (b *FileSystem) Open(
	name string,
	flags uint32,
	context *fuse.Context) (nodefs.File, fuse.Status) {
	err := b.core.Open(bg(), callerOf(context), name, flags)
	if err != nil {
		return nil, done("open", name, err)
	}

	return newFileHandle(b.core, name, callerOf(context)), done("open", name, nil)
}

func (b *FileSystem) Create(
	name string,
	flags uint32,
	mode uint32,
	context *fuse.Context) (nodefs.File, fuse.Status) {
	err := b.core.Create(bg(), callerOf(context), name, mode)
	if err != nil {
		return nil, done("create", name, err)
	}

	return newFileHandle(b.core, name, callerOf(context)), done("create", name, nil)
}

////////////////////////////////////////////////////////////////////////
// Extended attributes
////////////////////////////////////////////////////////////////////////

func (b *FileSystem) GetXAttr(
	name string,
	attribute string,
	context *fuse.Context) ([]byte, fuse.Status) {
	value, err := b.core.GetXattr(bg(), callerOf(context), name, attribute)
	if err != nil {
		return nil, done("getxattr", name, err)
	}

	return value, done("getxattr", name, nil)
}

func (b *FileSystem) SetXAttr(
	name string,
	attr string,
	data []byte,
	flags int,
	context *fuse.Context) fuse.Status {
	return done("setxattr", name,
		b.core.SetXattr(bg(), callerOf(context), name, attr, data))
}

func (b *FileSystem) RemoveXAttr(
	name string,
	attr string,
	context *fuse.Context) fuse.Status {
	return done("removexattr", name,
		b.core.RemoveXattr(bg(), callerOf(context), name, attr))
}

////////////////////////////////////////////////////////////////////////
// Filesystem-wide
////////////////////////////////////////////////////////////////////////

func (b *FileSystem) StatFs(name string) *fuse.StatfsOut {
	return &fuse.StatfsOut{
		Bsize:   512,
		NameLen: 255,
	}
}

func bg() context.Context {
	return context.Background()
}
