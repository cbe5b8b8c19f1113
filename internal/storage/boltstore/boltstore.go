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

// Package boltstore implements the object-store contract on top of a local
// bbolt database, giving a durable single-machine backend. Appends are
// atomic because bbolt serializes all writing transactions.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/appendfs/appendfs/internal/storage"
	bolt "go.etcd.io/bbolt"
)

var objectsBucket = []byte("objects")

// Every value carries a one-byte header. bbolt's Get returns nil both for a
// missing key and for a key whose value is empty, so a bare empty blob would
// be indistinguishable from an absent one.
const valueHeader = byte(0x01)

// Store is a bbolt-backed object store.
type Store struct {
	db *bolt.DB
}

var _ storage.ObjectStore = &Store{}

// Open opens or creates the database at the given path.
func Open(path string, mode os.FileMode) (s *Store, err error) {
	db, err := bolt.Open(path, mode, &bolt.Options{Timeout: time.Second})
	if err != nil {
		err = fmt.Errorf("opening %s: %w", path, err)
		return
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})

	if err != nil {
		db.Close()
		err = fmt.Errorf("creating objects bucket: %w", err)
		return
	}

	s = &Store{db: db}
	return
}

// Close releases the database. The store must not be used afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Store(
	ctx context.Context,
	ref storage.Ref,
	data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		v := make([]byte, 0, 1+len(data))
		v = append(v, valueHeader)
		v = append(v, data...)

		return tx.Bucket(objectsBucket).Put(ref[:], v)
	})
}

func (s *Store) Fetch(
	ctx context.Context,
	ref storage.Ref) (data []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get(ref[:])
		if len(v) == 0 {
			return &storage.NotFoundError{Ref: ref}
		}

		// v is only valid inside the transaction.
		data = append([]byte(nil), v[1:]...)
		return nil
	})

	return
}

func (s *Store) FetchTail(
	ctx context.Context,
	ref storage.Ref,
	n int) (data []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucket).Get(ref[:])
		if len(v) == 0 {
			return &storage.NotFoundError{Ref: ref}
		}

		body := v[1:]
		if n > len(body) {
			n = len(body)
		}

		data = append([]byte(nil), body[len(body)-n:]...)
		return nil
	})

	return
}

func (s *Store) Append(
	ctx context.Context,
	ref storage.Ref,
	data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(objectsBucket)
		cur := b.Get(ref[:])

		grown := make([]byte, 0, len(cur)+len(data)+1)
		if len(cur) == 0 {
			grown = append(grown, valueHeader)
		}
		grown = append(grown, cur...)
		grown = append(grown, data...)

		return b.Put(ref[:], grown)
	})
}
