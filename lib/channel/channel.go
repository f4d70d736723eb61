// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel provides the message conduit used by the artifact
// transfer protocol: a bidirectional, ordered, message-oriented link
// between two named endpoints.
//
// Two realizations satisfy the same contract. A direct pair maps each
// message 1:1 onto an in-memory queue between exactly two parties. The
// pub/sub realization emulates the pair over a shared topic [Bus]:
// because bus delivery is asynchronous relative to the caller, its
// Receive blocks by polling a mailbox fed by the subscription callback.
//
// The two realizations are free-standing adapters of the [Channel]
// interface; they share no implementation.
package channel

import (
	"context"
	"errors"
	"time"
)

// Channel is a bidirectional, ordered, message-oriented conduit.
//
// Sends on one instance are delivered to the peer in order. Receive
// blocks until a message arrives, the timeout elapses, or the context
// is cancelled. Close is idempotent and never fails on an
// already-closed channel.
type Channel interface {
	// Send enqueues one message for the peer. Fails with ErrClosed
	// after either endpoint has closed.
	Send(ctx context.Context, payload []byte) error

	// Receive returns the next message from the peer. A timeout
	// surfaces ErrTimeout, distinguishable from protocol errors with
	// errors.Is.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Close releases the channel. Idempotent.
	Close() error
}

// ErrTimeout reports that no message arrived within the Receive bound.
var ErrTimeout = errors.New("channel: receive timed out")

// ErrClosed reports an operation on a closed channel.
var ErrClosed = errors.New("channel: closed")
