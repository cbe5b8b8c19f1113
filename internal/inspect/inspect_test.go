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

package inspect_test

import (
	"context"
	"testing"
	"time"

	"github.com/appendfs/appendfs/internal/fs"
	"github.com/appendfs/appendfs/internal/fs/inode"
	"github.com/appendfs/appendfs/internal/inspect"
	"github.com/appendfs/appendfs/internal/storage"
	"github.com/appendfs/appendfs/internal/storage/memstore"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type InspectTest struct {
	suite.Suite

	ctx    context.Context
	store  *memstore.Store
	fs     *fs.FileSystem
	caller fs.Caller
}

func TestInspectSuite(t *testing.T) {
	suite.Run(t, new(InspectTest))
}

func (t *InspectTest) SetupTest() {
	t.ctx = context.Background()
	t.store = memstore.New()
	t.caller = fs.Caller{Uid: 1000, Gid: 1000}

	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Date(2021, 6, 7, 12, 0, 0, 0, time.Local))

	var err error
	t.fs, err = fs.New(t.ctx, &fs.ServerConfig{
		Clock:  clock,
		Store:  t.store,
		FSName: "inspected",
		Uid:    t.caller.Uid,
		Gid:    t.caller.Gid,
	})

	require.NoError(t.T(), err)
}

func (t *InspectTest) TestHistoryShowsEveryGeneration() {
	root := storage.RefForName("inspected")

	// Bootstrap wrote generation zero; two mutations follow.
	require.NoError(t.T(), t.fs.Create(t.ctx, t.caller, "/a", 0644))
	require.NoError(t.T(), t.fs.Create(t.ctx, t.caller, "/b", 0644))

	gens, err := inspect.History(t.ctx, t.store, root)
	require.NoError(t.T(), err)
	require.Len(t.T(), gens, 3)

	// Oldest first: the empty bootstrap root, then one entry, then two.
	assert.Equal(t.T(), uint64(0), gens[0].Size)
	for _, g := range gens {
		assert.Equal(t.T(), inode.Dir, g.Type)
	}

	entries, err := inspect.Dir(t.ctx, t.store, gens[2].DataRef)
	require.NoError(t.T(), err)
	require.Len(t.T(), entries, 2)
	assert.Equal(t.T(), "a", entries[0].Name)
	assert.Equal(t.T(), "b", entries[1].Name)

	// The superseded generation still decodes.
	entries, err = inspect.Dir(t.ctx, t.store, gens[1].DataRef)
	require.NoError(t.T(), err)
	require.Len(t.T(), entries, 1)
}

func (t *InspectTest) TestHistoryRejectsRaggedLog() {
	ref := storage.NewRef()
	require.NoError(t.T(), t.store.Store(t.ctx, ref, make([]byte, inode.RecordSize+1)))

	_, err := inspect.History(t.ctx, t.store, ref)
	assert.Error(t.T(), err)
}

func (t *InspectTest) TestXattrs() {
	require.NoError(t.T(), t.fs.Create(t.ctx, t.caller, "/a", 0644))
	require.NoError(t.T(),
		t.fs.SetXattr(t.ctx, t.caller, "/a", "user.x", []byte("v")))

	root := storage.RefForName("inspected")
	gens, err := inspect.History(t.ctx, t.store, root)
	require.NoError(t.T(), err)

	entries, err := inspect.Dir(t.ctx, t.store, gens[len(gens)-1].DataRef)
	require.NoError(t.T(), err)
	require.Len(t.T(), entries, 1)

	fileGens, err := inspect.History(t.ctx, t.store, entries[0].Node)
	require.NoError(t.T(), err)

	attrs, err := inspect.Xattrs(t.ctx, t.store, fileGens[len(fileGens)-1].XattrRef)
	require.NoError(t.T(), err)
	require.Len(t.T(), attrs, 1)
	assert.Equal(t.T(), "user.x", attrs[0].Name)
	assert.Equal(t.T(), "v", string(attrs[0].Value))
}

func (t *InspectTest) TestFormatInode() {
	in := inode.Inode{
		Mode:  0644,
		Uid:   1,
		Gid:   2,
		Size:  3,
		Nlink: 1,
		Type:  inode.File,
	}

	out := inspect.FormatInode(in)
	assert.Contains(t.T(), out, "mode: 644")
	assert.Contains(t.T(), out, "type: FILE")
	assert.Contains(t.T(), out, "data_ref: "+in.DataRef.String())
}
