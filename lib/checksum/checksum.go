// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum provides the running digest used to verify artifact
// transfers. The wire protocol fixes the digest as SHA-512 computed
// over exactly the bytes transmitted so far, so corruption is
// detectable chunk by chunk rather than only at end of stream.
package checksum

import (
	"crypto/sha512"
	"hash"
)

// Size is the digest length in bytes.
const Size = sha512.Size

// Accumulator is an incremental SHA-512 over a byte stream. Each
// transfer session owns exactly one accumulator; they are never shared
// or reused across sessions.
type Accumulator struct {
	h hash.Hash
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{h: sha512.New()}
}

// Update feeds data in arrival order.
func (a *Accumulator) Update(data []byte) {
	// hash.Hash.Write never returns an error.
	a.h.Write(data)
}

// Digest returns the hash of everything fed so far. Calling Digest
// does not disturb the running state; Update may continue afterwards.
func (a *Accumulator) Digest() []byte {
	return a.h.Sum(nil)
}

// Reset returns the accumulator to its empty state.
func (a *Accumulator) Reset() {
	a.h.Reset()
}
