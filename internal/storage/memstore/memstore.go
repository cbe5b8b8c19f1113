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

// Package memstore implements the object-store contract in memory. It is
// the backend used by unit tests, and doubles as a scratch backend for
// throwaway mounts.
package memstore

import (
	"context"

	"github.com/appendfs/appendfs/internal/storage"
	"github.com/jacobsa/syncutil"
)

// Store is an in-memory object store. Safe for concurrent access.
type Store struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	objects map[storage.Ref][]byte
}

var _ storage.ObjectStore = &Store{}

// New creates an empty in-memory store.
func New() (s *Store) {
	s = &Store{
		objects: make(map[storage.Ref][]byte),
	}

	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	return
}

// LOCKS_REQUIRED(s.mu)
func (s *Store) checkInvariants() {
	// All objects are stored under non-zero refs.
	var zero storage.Ref
	if _, ok := s.objects[zero]; ok {
		panic("memstore: object stored under the zero ref")
	}
}

func (s *Store) Store(ctx context.Context, ref storage.Ref, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[ref] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Fetch(ctx context.Context, ref storage.Ref) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[ref]
	if !ok {
		return nil, &storage.NotFoundError{Ref: ref}
	}

	return append([]byte(nil), data...), nil
}

func (s *Store) FetchTail(
	ctx context.Context,
	ref storage.Ref,
	n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[ref]
	if !ok {
		return nil, &storage.NotFoundError{Ref: ref}
	}

	if n > len(data) {
		n = len(data)
	}

	return append([]byte(nil), data[len(data)-n:]...), nil
}

func (s *Store) Append(
	ctx context.Context,
	ref storage.Ref,
	data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[ref] = append(s.objects[ref], data...)
	return nil
}

// ObjectCount returns the number of distinct refs with content. Handy for
// asserting that an operation published nothing.
func (s *Store) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.objects)
}

// ObjectLen returns the byte length of the object under ref, or -1 if the
// object does not exist.
func (s *Store) ObjectLen(ref storage.Ref) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[ref]
	if !ok {
		return -1
	}

	return len(data)
}
