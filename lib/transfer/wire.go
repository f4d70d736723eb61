// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package transfer implements the pull-based chunked artifact transfer
// protocol.
//
// The receiver drives the session: it alternates "fetch" and "checksum"
// requests over a [channel.Channel], appending verified chunks to its
// destination. The sender serves requests from its own advancing read
// cursor and maintains its own running digest over exactly the bytes it
// has transmitted, so a mismatch is detectable on the very chunk that
// was corrupted.
//
// Wire format:
//
//   - requests are CBOR arrays: ["fetch", chunkSize] or ["checksum"]
//   - chunk responses are a tagged CBOR map {data, eof}; eof is set
//     only when the sender's cursor has reached end of input, in place
//     of chunk bytes
//   - checksum responses are the raw 64-byte SHA-512 digest
//
// Ordering within a session is strict request/response alternation.
// Sessions share no mutable state: each owns its channel, accumulator,
// and destination.
package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/gbhanda/volttron/lib/codec"
)

const (
	// DefaultChunkSize is the per-fetch byte bound when the session
	// does not configure one.
	DefaultChunkSize = 1024

	// DefaultReceiveTimeout bounds each wait for a response or
	// request. A session that exceeds it is aborted, not retried.
	DefaultReceiveTimeout = 30 * time.Second
)

// ErrChecksumMismatch reports that the sender's digest disagrees with
// the receiver's over the bytes transferred so far. Session-fatal:
// indicates corruption in transit or a buggy sender, never retried
// internally.
var ErrChecksumMismatch = errors.New("transfer: checksum mismatch")

// Request actions.
const (
	actionFetch    = "fetch"
	actionChecksum = "checksum"
)

// chunkReply is the tagged chunk response. EOF true marks end of
// stream and carries no data; a real chunk always has EOF false, so no
// payload value can collide with the end-of-stream signal.
type chunkReply struct {
	Data []byte `cbor:"data,omitempty"`
	EOF  bool   `cbor:"eof,omitempty"`
}

func encodeFetch(chunkSize int) ([]byte, error) {
	return codec.Marshal([]any{actionFetch, chunkSize})
}

func encodeChecksum() ([]byte, error) {
	return codec.Marshal([]any{actionChecksum})
}

// decodeRequest parses a request array into its action and, for fetch,
// the requested chunk size.
func decodeRequest(data []byte) (action string, chunkSize int, err error) {
	var fields []codec.RawMessage
	if err := codec.Unmarshal(data, &fields); err != nil {
		return "", 0, fmt.Errorf("decoding request: %w", err)
	}
	if len(fields) == 0 {
		return "", 0, errors.New("empty request array")
	}
	if err := codec.Unmarshal(fields[0], &action); err != nil {
		return "", 0, fmt.Errorf("decoding request action: %w", err)
	}

	switch action {
	case actionFetch:
		if len(fields) != 2 {
			return "", 0, fmt.Errorf("fetch request has %d elements, want 2", len(fields))
		}
		if err := codec.Unmarshal(fields[1], &chunkSize); err != nil {
			return "", 0, fmt.Errorf("decoding fetch chunk size: %w", err)
		}
		if chunkSize <= 0 {
			return "", 0, fmt.Errorf("fetch chunk size %d out of range", chunkSize)
		}
		return action, chunkSize, nil
	case actionChecksum:
		if len(fields) != 1 {
			return "", 0, fmt.Errorf("checksum request has %d elements, want 1", len(fields))
		}
		return action, 0, nil
	default:
		return "", 0, fmt.Errorf("unknown request action %q", action)
	}
}

func encodeChunkReply(reply chunkReply) ([]byte, error) {
	return codec.Marshal(reply)
}

func decodeChunkReply(data []byte) (chunkReply, error) {
	var reply chunkReply
	if err := codec.Unmarshal(data, &reply); err != nil {
		return chunkReply{}, fmt.Errorf("decoding chunk reply: %w", err)
	}
	return reply, nil
}
