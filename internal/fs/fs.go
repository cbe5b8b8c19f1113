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

// Package fs implements the metadata and data layer of the filesystem: the
// path resolver and the POSIX operations, expressed as copy-on-write
// rewrites of directory, data and xattr blobs plus appends to inode logs.
//
// The package holds no state across operations. Every operation is a
// read-modify-publish transaction against the backend at per-inode-log
// granularity, run to completion on the caller's goroutine.
package fs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appendfs/appendfs/internal/fs/inode"
	"github.com/appendfs/appendfs/internal/storage"
	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"
)

// MaxNameLen bounds symlink targets and link paths, matching the path
// length bound the kernel bridge enforces.
const MaxNameLen = 4096

// ServerConfig carries everything needed to mount a filesystem.
type ServerConfig struct {
	// A clock used for inode timestamps.
	Clock timeutil.Clock

	// The backend all durable state lives in.
	Store storage.ObjectStore

	// The filesystem's name. Hashing it yields the ref of the root inode
	// log, so mounting the same name against the same backend re-mounts the
	// same filesystem.
	FSName string

	// The identity that owns the root directory if this mount has to
	// bootstrap a fresh filesystem.
	Uid uint32
	Gid uint32
}

// FileSystem is the mounted filesystem: one long-lived value owned by the
// process entry point and shared by all request goroutines. It is safe for
// concurrent use; all shared state lives in the backend.
type FileSystem struct {
	clock timeutil.Clock
	store storage.ObjectStore
	root  *inode.Node
}

// New binds to the filesystem named by cfg.FSName, bootstrapping an empty
// root directory if the root inode log has never been written.
func New(ctx context.Context, cfg *ServerConfig) (fs *FileSystem, err error) {
	fs = &FileSystem{
		clock: cfg.Clock,
		store: cfg.Store,
		root:  inode.NewNode(storage.RefForName(cfg.FSName), cfg.Store),
	}

	_, err = fs.root.Current(ctx)
	if err == nil {
		return
	}

	var notFound *storage.NotFoundError
	if !errors.As(err, &notFound) {
		err = fmt.Errorf("reading root inode: %w", err)
		return
	}

	// First mount: publish an empty root directory.
	blobRef := storage.NewRef()
	if err = fs.store.Store(ctx, blobRef, nil); err != nil {
		err = fmt.Errorf("storing root directory blob: %w", err)
		return
	}

	now := inode.TimespecOf(fs.clock.Now())
	err = fs.root.Update(ctx, inode.Inode{
		Mode:    unix.S_IFDIR | 0755,
		Uid:     cfg.Uid,
		Gid:     cfg.Gid,
		Size:    0,
		Nlink:   1,
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
		Type:    inode.Dir,
		DataRef: blobRef,
	})

	if err != nil {
		err = fmt.Errorf("bootstrapping root inode: %w", err)
		return
	}

	return
}

////////////////////////////////////////////////////////////////////////
// Path resolution
////////////////////////////////////////////////////////////////////////

// splitPath decomposes a path into its components, discarding empty ones so
// that leading, trailing and repeated slashes are all handled uniformly.
// The empty result names the root.
func splitPath(p string) (comps []string) {
	for _, c := range strings.Split(p, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}

	return
}

// currentInode reads a node's latest snapshot, translating an absent inode
// log into the lookup error surface.
func (fs *FileSystem) currentInode(
	ctx context.Context,
	n *inode.Node) (in inode.Inode, err error) {
	in, err = n.Current(ctx)

	var notFound *storage.NotFoundError
	if errors.As(err, &notFound) {
		err = ErrNotFound
	}

	return
}

// readDirBlob fetches and decodes the directory blob of a directory inode.
func (fs *FileSystem) readDirBlob(
	ctx context.Context,
	in inode.Inode) (entries []inode.DirEntry, err error) {
	blob, err := fs.store.Fetch(ctx, in.DataRef)
	if err != nil {
		err = fmt.Errorf("fetching directory blob %s: %w", in.DataRef, err)
		return
	}

	entries, err = inode.DecodeDir(blob)
	if err != nil {
		err = fmt.Errorf("directory blob %s: %w", in.DataRef, err)
		return
	}

	return
}

func findEntry(entries []inode.DirEntry, name string) (storage.Ref, bool) {
	for i := range entries {
		if entries[i].Name == name {
			return entries[i].Node, true
		}
	}

	return storage.Ref{}, false
}

// resolve walks from the root to the node named by comps. Each level
// commits to the directory blob visible when it was fetched; a concurrent
// mutation above a level the walk has already passed is not observed.
func (fs *FileSystem) resolve(
	ctx context.Context,
	caller Caller,
	comps []string) (n *inode.Node, err error) {
	n = fs.root
	for _, name := range comps {
		var in inode.Inode
		if in, err = fs.currentInode(ctx, n); err != nil {
			return
		}

		if in.Type != inode.Dir {
			err = ErrNotADirectory
			return
		}

		if err = checkAccess(in, caller, unix.X_OK); err != nil {
			return
		}

		var entries []inode.DirEntry
		if entries, err = fs.readDirBlob(ctx, in); err != nil {
			return
		}

		ref, ok := findEntry(entries, name)
		if !ok {
			err = fmt.Errorf("%q: %w", name, ErrNotFound)
			return
		}

		n = inode.NewNode(ref, fs.store)
	}

	return
}

// resolvePath is resolve on a raw path string.
func (fs *FileSystem) resolvePath(
	ctx context.Context,
	caller Caller,
	path string) (*inode.Node, error) {
	return fs.resolve(ctx, caller, splitPath(path))
}

// lookupParent resolves the parent directory of the path given by comps and
// returns it along with its current inode and the leaf name. comps must be
// non-empty.
func (fs *FileSystem) lookupParent(
	ctx context.Context,
	caller Caller,
	comps []string) (parent *inode.Node, pin inode.Inode, name string, err error) {
	name = comps[len(comps)-1]

	parent, err = fs.resolve(ctx, caller, comps[:len(comps)-1])
	if err != nil {
		return
	}

	pin, err = fs.currentInode(ctx, parent)
	if err != nil {
		return
	}

	if pin.Type != inode.Dir {
		err = ErrNotADirectory
		return
	}

	return
}

// publishDir is the tail of every directory mutation: serialize the new
// entry list to a fresh blob and append the parent inode pointing at it,
// with size and times refreshed.
func (fs *FileSystem) publishDir(
	ctx context.Context,
	parent *inode.Node,
	pin inode.Inode,
	entries []inode.DirEntry) (err error) {
	blob, err := inode.EncodeDir(entries)
	if err != nil {
		return
	}

	ref := storage.NewRef()
	if err = fs.store.Store(ctx, ref, blob); err != nil {
		err = fmt.Errorf("storing directory blob: %w", err)
		return
	}

	now := inode.TimespecOf(fs.clock.Now())
	pin.DataRef = ref
	pin.Size = uint64(len(blob))
	pin.Atime = now
	pin.Mtime = now

	return parent.Update(ctx, pin)
}

////////////////////////////////////////////////////////////////////////
// Stat, access, attributes
////////////////////////////////////////////////////////////////////////

// GetAttr returns the current inode of the node at path. Reading
// attributes additionally requires read permission on the path's parent
// directory; the root is its own parent.
func (fs *FileSystem) GetAttr(
	ctx context.Context,
	caller Caller,
	path string) (in inode.Inode, err error) {
	comps := splitPath(path)

	if len(comps) == 0 {
		if in, err = fs.currentInode(ctx, fs.root); err != nil {
			return
		}

		err = checkAccess(in, caller, unix.R_OK)
		return
	}

	_, pin, name, err := fs.lookupParent(ctx, caller, comps)
	if err != nil {
		return
	}

	if err = checkAccess(pin, caller, unix.R_OK); err != nil {
		return
	}

	entries, err := fs.readDirBlob(ctx, pin)
	if err != nil {
		return
	}

	ref, ok := findEntry(entries, name)
	if !ok {
		err = fmt.Errorf("%q: %w", name, ErrNotFound)
		return
	}

	in, err = fs.currentInode(ctx, inode.NewNode(ref, fs.store))
	return
}

// Access checks whether the caller may access the node at path with the
// requested mask. A zero mask (F_OK) succeeds iff the path resolves.
func (fs *FileSystem) Access(
	ctx context.Context,
	caller Caller,
	path string,
	mask uint32) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	if mask == 0 {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	return checkAccess(in, caller, mask)
}

// Chmod replaces the permission bits of the node at path. Only the owner
// may do so; the discretionary check does not apply.
func (fs *FileSystem) Chmod(
	ctx context.Context,
	caller Caller,
	path string,
	mode uint32) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if err = checkOwner(in, caller); err != nil {
		return
	}

	in.Mode = in.Mode&^07777 | mode&07777
	return n.Update(ctx, in)
}

// ChownNone as a uid or gid leaves that identity unchanged.
const ChownNone = ^uint32(0)

// Chown replaces the ownership of the node at path. Only the owner may do
// so.
func (fs *FileSystem) Chown(
	ctx context.Context,
	caller Caller,
	path string,
	uid uint32,
	gid uint32) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if err = checkOwner(in, caller); err != nil {
		return
	}

	if uid != ChownNone {
		in.Uid = uid
	}

	if gid != ChownNone {
		in.Gid = gid
	}

	return n.Update(ctx, in)
}

// Utimens sets the access and modification times of the node at path. A
// nil time leaves the corresponding field unchanged. The standard write
// check applies, relaxed so that the owner always passes.
func (fs *FileSystem) Utimens(
	ctx context.Context,
	caller Caller,
	path string,
	atime *time.Time,
	mtime *time.Time) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if err = checkUtimens(in, caller); err != nil {
		return
	}

	if atime != nil {
		in.Atime = inode.TimespecOf(*atime)
	}

	if mtime != nil {
		in.Mtime = inode.TimespecOf(*mtime)
	}

	return n.Update(ctx, in)
}

////////////////////////////////////////////////////////////////////////
// Directories
////////////////////////////////////////////////////////////////////////

// ReadDir lists the entries of the directory at path.
func (fs *FileSystem) ReadDir(
	ctx context.Context,
	caller Caller,
	path string) (entries []inode.DirEntry, err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if in.Type != inode.Dir {
		err = ErrNotADirectory
		return
	}

	if err = checkAccess(in, caller, unix.R_OK); err != nil {
		return
	}

	return fs.readDirBlob(ctx, in)
}

// MkDir creates an empty directory at path with the given permission bits.
func (fs *FileSystem) MkDir(
	ctx context.Context,
	caller Caller,
	path string,
	mode uint32) (err error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return ErrFileExists
	}

	parent, pin, name, err := fs.lookupParent(ctx, caller, comps)
	if err != nil {
		return
	}

	if err = checkAccess(pin, caller, unix.W_OK); err != nil {
		return
	}

	entries, err := fs.readDirBlob(ctx, pin)
	if err != nil {
		return
	}

	if _, ok := findEntry(entries, name); ok {
		return ErrFileExists
	}

	blobRef := storage.NewRef()
	if err = fs.store.Store(ctx, blobRef, nil); err != nil {
		err = fmt.Errorf("storing directory blob: %w", err)
		return
	}

	now := inode.TimespecOf(fs.clock.Now())
	child := inode.NewNode(storage.NewRef(), fs.store)
	err = child.Update(ctx, inode.Inode{
		Mode:    unix.S_IFDIR | mode&07777,
		Uid:     caller.Uid,
		Gid:     caller.Gid,
		Size:    0,
		Nlink:   1,
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
		Type:    inode.Dir,
		DataRef: blobRef,
	})

	if err != nil {
		return
	}

	entries = append(entries, inode.DirEntry{Name: name, Node: child.Ref()})
	return fs.publishDir(ctx, parent, pin, entries)
}

// Create creates an empty regular file at path with the given permission
// bits. Unlike directories and symlinks, files are born with an (empty)
// xattr dictionary blob.
func (fs *FileSystem) Create(
	ctx context.Context,
	caller Caller,
	path string,
	mode uint32) (err error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return ErrFileExists
	}

	parent, pin, name, err := fs.lookupParent(ctx, caller, comps)
	if err != nil {
		return
	}

	if err = checkAccess(pin, caller, unix.W_OK); err != nil {
		return
	}

	entries, err := fs.readDirBlob(ctx, pin)
	if err != nil {
		return
	}

	if _, ok := findEntry(entries, name); ok {
		return ErrFileExists
	}

	dataRef := storage.NewRef()
	if err = fs.store.Store(ctx, dataRef, nil); err != nil {
		err = fmt.Errorf("storing data blob: %w", err)
		return
	}

	xattrRef := storage.NewRef()
	if err = fs.store.Store(ctx, xattrRef, nil); err != nil {
		err = fmt.Errorf("storing xattr blob: %w", err)
		return
	}

	now := inode.TimespecOf(fs.clock.Now())
	child := inode.NewNode(storage.NewRef(), fs.store)
	err = child.Update(ctx, inode.Inode{
		Mode:     unix.S_IFREG | mode&07777,
		Uid:      caller.Uid,
		Gid:      caller.Gid,
		Size:     0,
		Nlink:    1,
		Atime:    now,
		Mtime:    now,
		Ctime:    now,
		Type:     inode.File,
		DataRef:  dataRef,
		XattrRef: xattrRef,
	})

	if err != nil {
		return
	}

	entries = append(entries, inode.DirEntry{Name: name, Node: child.Ref()})
	return fs.publishDir(ctx, parent, pin, entries)
}

// SymLink creates a symlink at linkpath whose target is the literal string
// target.
func (fs *FileSystem) SymLink(
	ctx context.Context,
	caller Caller,
	target string,
	linkpath string) (err error) {
	if len(target) >= MaxNameLen || len(linkpath) >= MaxNameLen {
		return ErrNameTooLong
	}

	comps := splitPath(linkpath)
	if len(comps) == 0 {
		return ErrFileExists
	}

	parent, pin, name, err := fs.lookupParent(ctx, caller, comps)
	if err != nil {
		return
	}

	if err = checkAccess(pin, caller, unix.W_OK); err != nil {
		return
	}

	entries, err := fs.readDirBlob(ctx, pin)
	if err != nil {
		return
	}

	if _, ok := findEntry(entries, name); ok {
		return ErrFileExists
	}

	targetRef := storage.NewRef()
	if err = fs.store.Store(ctx, targetRef, []byte(target)); err != nil {
		err = fmt.Errorf("storing symlink target blob: %w", err)
		return
	}

	now := inode.TimespecOf(fs.clock.Now())
	child := inode.NewNode(storage.NewRef(), fs.store)
	err = child.Update(ctx, inode.Inode{
		Mode:    unix.S_IFLNK | 0777,
		Uid:     caller.Uid,
		Gid:     caller.Gid,
		Size:    uint64(len(target)),
		Nlink:   1,
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
		Type:    inode.Symlink,
		DataRef: targetRef,
	})

	if err != nil {
		return
	}

	entries = append(entries, inode.DirEntry{Name: name, Node: child.Ref()})
	return fs.publishDir(ctx, parent, pin, entries)
}

// ReadLink returns the target string of the symlink at path.
func (fs *FileSystem) ReadLink(
	ctx context.Context,
	caller Caller,
	path string) (target string, err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if in.Type != inode.Symlink {
		err = ErrBadDescriptor
		return
	}

	blob, err := fs.store.Fetch(ctx, in.DataRef)
	if err != nil {
		err = fmt.Errorf("fetching symlink target blob: %w", err)
		return
	}

	target = string(blob)
	return
}

// Link makes newpath a second name for the node at existing. Both names
// share one inode log; a change through either is observed through the
// other.
func (fs *FileSystem) Link(
	ctx context.Context,
	caller Caller,
	existing string,
	newpath string) (err error) {
	comps := splitPath(newpath)
	if len(comps) == 0 {
		return ErrFileExists
	}

	target, err := fs.resolvePath(ctx, caller, existing)
	if err != nil {
		return
	}

	tin, err := fs.currentInode(ctx, target)
	if err != nil {
		return
	}

	parent, pin, name, err := fs.lookupParent(ctx, caller, comps)
	if err != nil {
		return
	}

	if err = checkAccess(pin, caller, unix.W_OK); err != nil {
		return
	}

	entries, err := fs.readDirBlob(ctx, pin)
	if err != nil {
		return
	}

	if _, ok := findEntry(entries, name); ok {
		return ErrFileExists
	}

	tin.Nlink++
	if err = target.Update(ctx, tin); err != nil {
		return
	}

	entries = append(entries, inode.DirEntry{Name: name, Node: target.Ref()})
	return fs.publishDir(ctx, parent, pin, entries)
}

// Unlink removes the entry at path from its parent and decrements the
// target's link count. The inode log and all blobs remain in the backend;
// only the parenting changes.
func (fs *FileSystem) Unlink(
	ctx context.Context,
	caller Caller,
	path string) (err error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return ErrNotFound
	}

	parent, pin, name, err := fs.lookupParent(ctx, caller, comps)
	if err != nil {
		return
	}

	if err = checkAccess(pin, caller, unix.W_OK); err != nil {
		return
	}

	entries, err := fs.readDirBlob(ctx, pin)
	if err != nil {
		return
	}

	childRef, ok := findEntry(entries, name)
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}

	kept := make([]inode.DirEntry, 0, len(entries)-1)
	for i := range entries {
		if entries[i].Name != name {
			kept = append(kept, entries[i])
		}
	}

	if err = fs.publishDir(ctx, parent, pin, kept); err != nil {
		return
	}

	child := inode.NewNode(childRef, fs.store)
	cin, err := fs.currentInode(ctx, child)
	if err != nil {
		return
	}

	if cin.Nlink > 0 {
		cin.Nlink--
	}

	return child.Update(ctx, cin)
}

// RmDir removes the empty directory at path.
func (fs *FileSystem) RmDir(
	ctx context.Context,
	caller Caller,
	path string) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if in.Type != inode.Dir {
		return ErrNotADirectory
	}

	entries, err := fs.readDirBlob(ctx, in)
	if err != nil {
		return
	}

	if len(entries) > 0 {
		return ErrNotEmpty
	}

	return fs.Unlink(ctx, caller, path)
}

// Rename moves the entry at source to dest. The moved node's inode log is
// untouched; only directory parenting changes. Moves across two parents
// are two separate publishes and a concurrent reader may observe either
// order.
func (fs *FileSystem) Rename(
	ctx context.Context,
	caller Caller,
	source string,
	dest string) (err error) {
	if source == dest {
		return nil
	}

	scomps := splitPath(source)
	dcomps := splitPath(dest)
	if len(scomps) == 0 || len(dcomps) == 0 {
		return ErrNotFound
	}

	sparent, spin, sname, err := fs.lookupParent(ctx, caller, scomps)
	if err != nil {
		return
	}

	if err = checkAccess(spin, caller, unix.W_OK); err != nil {
		return
	}

	dparent, dpin, dname, err := fs.lookupParent(ctx, caller, dcomps)
	if err != nil {
		return
	}

	if err = checkAccess(dpin, caller, unix.W_OK); err != nil {
		return
	}

	sentries, err := fs.readDirBlob(ctx, spin)
	if err != nil {
		return
	}

	srcRef, ok := findEntry(sentries, sname)
	if !ok {
		return fmt.Errorf("%q: %w", sname, ErrNotFound)
	}

	// Same parent: one rewrite drops the source name and any entry the
	// dest name previously pointed at, then adds the dest name.
	if sparent.Ref() == dparent.Ref() {
		kept := make([]inode.DirEntry, 0, len(sentries))
		for i := range sentries {
			if sentries[i].Name != sname && sentries[i].Name != dname {
				kept = append(kept, sentries[i])
			}
		}

		kept = append(kept, inode.DirEntry{Name: dname, Node: srcRef})
		return fs.publishDir(ctx, sparent, spin, kept)
	}

	// Different parents: drop only the source name from the source parent,
	// and replace any dest-name entry in the dest parent. The two
	// publishes are not atomic with respect to each other.
	skept := make([]inode.DirEntry, 0, len(sentries)-1)
	for i := range sentries {
		if sentries[i].Name != sname {
			skept = append(skept, sentries[i])
		}
	}

	dentries, err := fs.readDirBlob(ctx, dpin)
	if err != nil {
		return
	}

	dkept := make([]inode.DirEntry, 0, len(dentries)+1)
	for i := range dentries {
		if dentries[i].Name != dname {
			dkept = append(dkept, dentries[i])
		}
	}

	dkept = append(dkept, inode.DirEntry{Name: dname, Node: srcRef})

	if err = fs.publishDir(ctx, sparent, spin, skept); err != nil {
		return
	}

	return fs.publishDir(ctx, dparent, dpin, dkept)
}

////////////////////////////////////////////////////////////////////////
// File data
////////////////////////////////////////////////////////////////////////

// Open verifies that the caller may open the node at path with the given
// flags. The core keeps no open-file state, so this is purely a probe.
func (fs *FileSystem) Open(
	ctx context.Context,
	caller Caller,
	path string,
	flags uint32) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	var mask uint32
	switch flags & unix.O_ACCMODE {
	case unix.O_RDONLY:
		mask = unix.R_OK
	case unix.O_WRONLY:
		mask = unix.W_OK
	case unix.O_RDWR:
		mask = unix.R_OK | unix.W_OK
	}

	if in.Type == inode.Dir && mask&unix.W_OK != 0 {
		return ErrIsADirectory
	}

	return checkAccess(in, caller, mask)
}

// Read returns up to size bytes of the file at path starting at offset.
// Reads past the end return no bytes. The backend has no partial fetch, so
// the whole data blob is fetched and sliced.
func (fs *FileSystem) Read(
	ctx context.Context,
	caller Caller,
	path string,
	size int,
	offset int64) (data []byte, err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	switch in.Type {
	case inode.Dir:
		err = ErrIsADirectory
		return
	case inode.Symlink:
		err = ErrBadDescriptor
		return
	}

	if err = checkAccess(in, caller, unix.R_OK); err != nil {
		return
	}

	if offset < 0 || uint64(offset) >= in.Size {
		return
	}

	blob, err := fs.store.Fetch(ctx, in.DataRef)
	if err != nil {
		err = fmt.Errorf("fetching data blob %s: %w", in.DataRef, err)
		return
	}

	if offset >= int64(len(blob)) {
		return
	}

	end := offset + int64(size)
	if end > int64(len(blob)) {
		end = int64(len(blob))
	}

	data = append([]byte(nil), blob[offset:end]...)
	return
}

// Write stores data at offset in the file at path and returns the number
// of bytes consumed.
//
// A write at exactly the current end of file appends to the existing data
// blob in place, the one case where a blob behaves as a log. Any other
// offset rewrites the whole contents to a fresh blob, zero-padding if the
// file is being extended.
func (fs *FileSystem) Write(
	ctx context.Context,
	caller Caller,
	path string,
	data []byte,
	offset int64) (n int, err error) {
	node, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, node)
	if err != nil {
		return
	}

	switch in.Type {
	case inode.Dir:
		err = ErrIsADirectory
		return
	case inode.Symlink:
		err = ErrBadDescriptor
		return
	}

	if err = checkAccess(in, caller, unix.W_OK); err != nil {
		return
	}

	if offset >= 0 && uint64(offset) == in.Size {
		if err = fs.store.Append(ctx, in.DataRef, data); err != nil {
			err = fmt.Errorf("appending to data blob %s: %w", in.DataRef, err)
			return
		}

		in.Size += uint64(len(data))
		if err = node.Update(ctx, in); err != nil {
			return
		}

		n = len(data)
		return
	}

	blob, err := fs.store.Fetch(ctx, in.DataRef)
	if err != nil {
		err = fmt.Errorf("fetching data blob %s: %w", in.DataRef, err)
		return
	}

	blob = resize(blob, offset)
	blob = append(blob, data...)

	ref := storage.NewRef()
	if err = fs.store.Store(ctx, ref, blob); err != nil {
		err = fmt.Errorf("storing data blob: %w", err)
		return
	}

	in.DataRef = ref
	in.Size = uint64(len(blob))
	if err = node.Update(ctx, in); err != nil {
		return
	}

	n = len(data)
	return
}

// Truncate resizes the file at path to size bytes, zero-padding on
// extension. Truncating to the current size publishes nothing.
func (fs *FileSystem) Truncate(
	ctx context.Context,
	caller Caller,
	path string,
	size uint64) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	switch in.Type {
	case inode.Dir:
		return ErrIsADirectory
	case inode.Symlink:
		return ErrBadDescriptor
	}

	if err = checkAccess(in, caller, unix.W_OK); err != nil {
		return
	}

	if size == in.Size {
		return nil
	}

	blob, err := fs.store.Fetch(ctx, in.DataRef)
	if err != nil {
		err = fmt.Errorf("fetching data blob %s: %w", in.DataRef, err)
		return
	}

	blob = resize(blob, int64(size))

	ref := storage.NewRef()
	if err = fs.store.Store(ctx, ref, blob); err != nil {
		err = fmt.Errorf("storing data blob: %w", err)
		return
	}

	in.DataRef = ref
	in.Size = uint64(len(blob))
	return n.Update(ctx, in)
}

// resize cuts or zero-pads b to exactly n bytes.
func resize(b []byte, n int64) []byte {
	if n < 0 {
		n = 0
	}

	if int64(len(b)) >= n {
		return b[:n]
	}

	return append(b, make([]byte, n-int64(len(b)))...)
}

////////////////////////////////////////////////////////////////////////
// Extended attributes
////////////////////////////////////////////////////////////////////////

// readXattrs loads the xattr dictionary of an inode. A node that has never
// carried xattrs — zero ref or a blob that was never written — yields
// ErrNoData.
func (fs *FileSystem) readXattrs(
	ctx context.Context,
	in inode.Inode) (attrs []inode.Xattr, err error) {
	if in.XattrRef.IsZero() {
		err = ErrNoData
		return
	}

	blob, err := fs.store.Fetch(ctx, in.XattrRef)
	if err != nil {
		var notFound *storage.NotFoundError
		if errors.As(err, &notFound) {
			err = ErrNoData
			return
		}

		err = fmt.Errorf("fetching xattr blob %s: %w", in.XattrRef, err)
		return
	}

	attrs, err = inode.DecodeXattrs(blob)
	if err != nil {
		err = fmt.Errorf("xattr blob %s: %w", in.XattrRef, err)
		return
	}

	return
}

// GetXattr returns the value of the named extended attribute of the node
// at path. Names match by full-string equality.
func (fs *FileSystem) GetXattr(
	ctx context.Context,
	caller Caller,
	path string,
	name string) (value []byte, err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if err = checkAccess(in, caller, unix.R_OK); err != nil {
		return
	}

	attrs, err := fs.readXattrs(ctx, in)
	if err != nil {
		return
	}

	for i := range attrs {
		if attrs[i].Name == name {
			value = append([]byte(nil), attrs[i].Value...)
			return
		}
	}

	err = ErrNoData
	return
}

// SetXattr sets the named extended attribute, replacing the value in place
// if the name already exists and appending a new pair otherwise.
func (fs *FileSystem) SetXattr(
	ctx context.Context,
	caller Caller,
	path string,
	name string,
	value []byte) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if err = checkAccess(in, caller, unix.W_OK); err != nil {
		return
	}

	attrs, err := fs.readXattrs(ctx, in)
	if err != nil && !errors.Is(err, ErrNoData) {
		return
	}

	replaced := false
	for i := range attrs {
		if attrs[i].Name == name {
			attrs[i].Value = append([]byte(nil), value...)
			replaced = true
			break
		}
	}

	if !replaced {
		attrs = append(attrs, inode.Xattr{
			Name:  name,
			Value: append([]byte(nil), value...),
		})
	}

	blob, err := inode.EncodeXattrs(attrs)
	if err != nil {
		return
	}

	ref := storage.NewRef()
	if err = fs.store.Store(ctx, ref, blob); err != nil {
		err = fmt.Errorf("storing xattr blob: %w", err)
		return
	}

	in.XattrRef = ref
	return n.Update(ctx, in)
}

// RemoveXattr drops the named extended attribute. Removing a name that is
// not present publishes nothing and succeeds.
func (fs *FileSystem) RemoveXattr(
	ctx context.Context,
	caller Caller,
	path string,
	name string) (err error) {
	n, err := fs.resolvePath(ctx, caller, path)
	if err != nil {
		return
	}

	in, err := fs.currentInode(ctx, n)
	if err != nil {
		return
	}

	if err = checkAccess(in, caller, unix.W_OK); err != nil {
		return
	}

	attrs, err := fs.readXattrs(ctx, in)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			err = nil
		}

		return
	}

	kept := make([]inode.Xattr, 0, len(attrs))
	for i := range attrs {
		if attrs[i].Name != name {
			kept = append(kept, attrs[i])
		}
	}

	if len(kept) == len(attrs) {
		return nil
	}

	blob, err := inode.EncodeXattrs(kept)
	if err != nil {
		return
	}

	ref := storage.NewRef()
	if err = fs.store.Store(ctx, ref, blob); err != nil {
		err = fmt.Errorf("storing xattr blob: %w", err)
		return
	}

	in.XattrRef = ref
	return n.Update(ctx, in)
}

////////////////////////////////////////////////////////////////////////
// No-op surface
////////////////////////////////////////////////////////////////////////

// Flush is accepted and does nothing; durability is a property of each
// completed store and append.
func (fs *FileSystem) Flush(ctx context.Context, caller Caller, path string) error {
	return nil
}

// Fsync is accepted and does nothing, as Flush.
func (fs *FileSystem) Fsync(ctx context.Context, caller Caller, path string) error {
	return nil
}

// Lock accepts byte-range lock requests without taking any lock. The
// command must be one of the known lock commands.
func (fs *FileSystem) Lock(
	ctx context.Context,
	caller Caller,
	path string,
	cmd int) error {
	switch cmd {
	case unix.F_GETLK, unix.F_SETLK, unix.F_SETLKW:
		return nil
	default:
		panic(fmt.Sprintf("unexpected lock command %d", cmd))
	}
}
