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

// Package storage defines the contract for the content-addressed,
// append-only object store that all durable filesystem state lives in.
package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RefSize is the width of an object reference in bytes.
const RefSize = 32

// Ref is the opaque identifier of a backend object. Refs compare byte-wise;
// the zero value is reserved to mean "no object".
type Ref [RefSize]byte

// NewRef mints a fresh ref. Freshly generated refs are unique with
// overwhelming probability.
func NewRef() (r Ref) {
	if _, err := rand.Read(r[:]); err != nil {
		// crypto/rand only fails if the platform's entropy source is
		// broken, at which point nothing else we do is safe either.
		panic(fmt.Sprintf("storage: reading random ref: %v", err))
	}

	return
}

// RefForName derives the well-known ref for a caller-supplied name, e.g. the
// root inode log of a filesystem. The same name always yields the same ref.
func RefForName(name string) (r Ref) {
	r = Ref(sha256.Sum256([]byte(name)))
	return
}

// ParseRef decodes the hex form produced by Ref.String.
func ParseRef(s string) (r Ref, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		err = fmt.Errorf("decoding ref %q: %w", s, err)
		return
	}

	if len(b) != RefSize {
		err = fmt.Errorf("ref %q: got %d bytes, want %d", s, len(b), RefSize)
		return
	}

	copy(r[:], b)
	return
}

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero reports whether r is the all-zero "no object" ref.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// A *NotFoundError is returned when an object does not exist, including
// tail reads of logs that have never been appended to.
type NotFoundError struct {
	Ref Ref
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s does not exist", e.Ref)
}

// ObjectStore is a connection to the backend, pre-bound with whatever
// authorization it needs. Blobs are written once via Store and are
// thereafter immutable; logs grow via Append and are read from the tail.
// The backend does not distinguish the two cases: every object is a byte
// string keyed by a ref, and Fetch always returns the whole thing.
type ObjectStore interface {
	// Store writes the body of a fresh blob. Callers only ever store under
	// refs they just minted, so overwrites do not arise in practice.
	Store(ctx context.Context, ref Ref, data []byte) error

	// Fetch reads an entire object. Returns *NotFoundError if nothing has
	// been stored or appended under ref.
	Fetch(ctx context.Context, ref Ref) ([]byte, error)

	// FetchTail reads the last n bytes of an object, or the whole object if
	// it is shorter than n. Returns *NotFoundError for an absent object.
	FetchTail(ctx context.Context, ref Ref, n int) ([]byte, error)

	// Append atomically extends the object under ref, creating it if
	// necessary. Concurrent appends are serialized by the backend; a record
	// is never interleaved with another.
	Append(ctx context.Context, ref Ref, data []byte) error
}
