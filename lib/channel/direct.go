// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"sync"
	"time"

	"github.com/gbhanda/volttron/lib/clock"
)

// Compile-time interface check.
var _ Channel = (*Direct)(nil)

// Direct is one endpoint of a dedicated two-party channel. Create both
// endpoints with Pair.
type Direct struct {
	in   chan []byte
	out  chan []byte
	clk  clock.Clock
	done chan struct{}
	once *sync.Once
}

// Pair returns two connected Direct endpoints. Messages sent on one
// are received on the other, in send order, buffered up to buffer
// messages per direction. Closing either endpoint closes the pair.
func Pair(clk clock.Clock, buffer int) (*Direct, *Direct) {
	aToB := make(chan []byte, buffer)
	bToA := make(chan []byte, buffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a := &Direct{in: bToA, out: aToB, clk: clk, done: done, once: once}
	b := &Direct{in: aToB, out: bToA, clk: clk, done: done, once: once}
	return a, b
}

// Send enqueues payload for the peer.
func (d *Direct) Send(ctx context.Context, payload []byte) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.out <- payload:
		return nil
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next message from the peer. Messages already in
// flight remain receivable after the pair closes; ErrClosed surfaces
// once the queue is drained.
func (d *Direct) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	// Prefer queued messages over the closed signal.
	select {
	case payload := <-d.in:
		return payload, nil
	default:
	}
	select {
	case payload := <-d.in:
		return payload, nil
	case <-d.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.clk.After(timeout):
		return nil, ErrTimeout
	}
}

// Close releases both endpoints of the pair. Idempotent.
func (d *Direct) Close() error {
	d.once.Do(func() { close(d.done) })
	return nil
}
