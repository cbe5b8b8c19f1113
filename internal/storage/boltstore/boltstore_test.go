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

package boltstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/appendfs/appendfs/internal/storage"
	"github.com/appendfs/appendfs/internal/storage/boltstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type BoltStoreTest struct {
	suite.Suite

	ctx   context.Context
	path  string
	store *boltstore.Store
}

func TestBoltStoreSuite(t *testing.T) {
	suite.Run(t, new(BoltStoreTest))
}

func (t *BoltStoreTest) SetupTest() {
	t.ctx = context.Background()
	t.path = filepath.Join(t.T().TempDir(), "store.db")

	var err error
	t.store, err = boltstore.Open(t.path, 0600)
	require.NoError(t.T(), err)
}

func (t *BoltStoreTest) TearDownTest() {
	require.NoError(t.T(), t.store.Close())
}

func (t *BoltStoreTest) TestFetchAbsent() {
	_, err := t.store.Fetch(t.ctx, storage.NewRef())

	var notFound *storage.NotFoundError
	assert.ErrorAs(t.T(), err, &notFound)
}

func (t *BoltStoreTest) TestStoreFetch() {
	ref := storage.NewRef()
	require.NoError(t.T(), t.store.Store(t.ctx, ref, []byte("hello")))

	data, err := t.store.Fetch(t.ctx, ref)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), "hello", string(data))
}

func (t *BoltStoreTest) TestEmptyBlobIsPresent() {
	// An empty blob must remain distinguishable from an absent one.
	ref := storage.NewRef()
	require.NoError(t.T(), t.store.Store(t.ctx, ref, nil))

	data, err := t.store.Fetch(t.ctx, ref)
	require.NoError(t.T(), err)
	assert.Empty(t.T(), data)
}

func (t *BoltStoreTest) TestAppendAndTail() {
	ref := storage.NewRef()
	require.NoError(t.T(), t.store.Append(t.ctx, ref, []byte("aa")))
	require.NoError(t.T(), t.store.Append(t.ctx, ref, []byte("bb")))

	data, err := t.store.Fetch(t.ctx, ref)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), "aabb", string(data))

	tail, err := t.store.FetchTail(t.ctx, ref, 3)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), "abb", string(tail))
}

func (t *BoltStoreTest) TestReopenKeepsContents() {
	ref := storage.NewRef()
	require.NoError(t.T(), t.store.Store(t.ctx, ref, []byte("durable")))
	require.NoError(t.T(), t.store.Close())

	var err error
	t.store, err = boltstore.Open(t.path, 0600)
	require.NoError(t.T(), err)

	data, err := t.store.Fetch(t.ctx, ref)
	require.NoError(t.T(), err)
	assert.Equal(t.T(), "durable", string(data))
}
