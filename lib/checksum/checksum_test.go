// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package checksum

import (
	"bytes"
	"crypto/sha512"
	"testing"
)

func TestDigestMatchesOneShot(t *testing.T) {
	a := New()
	a.Update([]byte("hello "))
	a.Update([]byte("world"))

	want := sha512.Sum512([]byte("hello world"))
	if !bytes.Equal(a.Digest(), want[:]) {
		t.Error("incremental digest differs from one-shot SHA-512")
	}
}

func TestDigestIsNonDestructive(t *testing.T) {
	a := New()
	a.Update([]byte("part one"))
	mid := a.Digest()
	if !bytes.Equal(mid, a.Digest()) {
		t.Error("repeated Digest calls disagree")
	}

	a.Update([]byte(" part two"))
	want := sha512.Sum512([]byte("part one part two"))
	if !bytes.Equal(a.Digest(), want[:]) {
		t.Error("Update after Digest lost running state")
	}
}

func TestReset(t *testing.T) {
	a := New()
	a.Update([]byte("stale"))
	a.Reset()

	want := sha512.Sum512(nil)
	if !bytes.Equal(a.Digest(), want[:]) {
		t.Error("Reset did not clear accumulated state")
	}
}

func TestDigestSize(t *testing.T) {
	if got := len(New().Digest()); got != Size {
		t.Errorf("digest length = %d, want %d", got, Size)
	}
}
