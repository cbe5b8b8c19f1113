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
	"context"
	"fmt"

	"github.com/appendfs/appendfs/internal/storage"
)

// A Node is the identity behind one inode log. The log's ref is the node's
// stable name: directory entries and hard links refer to it, and it never
// changes across mutations. A Node holds no cached state; every call goes
// to the backend.
type Node struct {
	ref   storage.Ref
	store storage.ObjectStore
}

// NewNode binds a node to its inode log.
func NewNode(ref storage.Ref, store storage.ObjectStore) *Node {
	return &Node{ref: ref, store: store}
}

// Ref returns the ref of the underlying inode log.
func (n *Node) Ref() storage.Ref {
	return n.ref
}

// Current returns the most recently appended inode record. Returns
// *storage.NotFoundError if the log has no records yet.
func (n *Node) Current(ctx context.Context) (in Inode, err error) {
	tail, err := n.store.FetchTail(ctx, n.ref, RecordSize)
	if err != nil {
		err = fmt.Errorf("tail of inode log %s: %w", n.ref, err)
		return
	}

	in, err = Decode(tail)
	if err != nil {
		err = fmt.Errorf("inode log %s: %w", n.ref, err)
		return
	}

	return
}

// Update appends one inode record to the log, making it the node's current
// inode for all subsequent readers.
func (n *Node) Update(ctx context.Context, in Inode) (err error) {
	err = n.store.Append(ctx, n.ref, in.Encode())
	if err != nil {
		err = fmt.Errorf("appending to inode log %s: %w", n.ref, err)
		return
	}

	return
}
