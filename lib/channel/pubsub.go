// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"sync"
	"time"

	"github.com/gbhanda/volttron/lib/clock"
)

// receivePollInterval is how often the pub/sub Receive re-checks its
// mailbox. Bus delivery is callback-fed and asynchronous, so the
// logical blocking receive is a poll loop over a delivered flag.
const receivePollInterval = 25 * time.Millisecond

// Compile-time interface check.
var _ Channel = (*PubSub)(nil)

// PubSub emulates a two-party channel over a shared Bus using a matched
// topic pair: sends publish to sendTopic, receives consume from
// recvTopic. The peer attaches with the topics swapped.
//
// The subscription callback deposits each payload into a one-slot
// mailbox; Receive polls the mailbox until a message is present or the
// deadline passes. A message published before Receive starts is still
// observed — the mailbox holds it. The one-slot mailbox relies on the
// transfer protocol's strict request/response alternation: at most one
// message is ever outstanding per direction.
type PubSub struct {
	bus       *Bus
	sendTopic string
	clk       clock.Clock

	mu        sync.Mutex
	pending   []byte
	delivered bool
	closed    bool

	cancel func()
}

// Attach subscribes to recvTopic on bus and returns the channel
// endpoint. The caller owns the endpoint and must Close it to release
// the subscription.
func Attach(bus *Bus, clk clock.Clock, sendTopic, recvTopic string) (*PubSub, error) {
	ps := &PubSub{bus: bus, sendTopic: sendTopic, clk: clk}
	cancel, err := bus.Subscribe(recvTopic, ps.onMessage)
	if err != nil {
		return nil, err
	}
	ps.cancel = cancel
	return ps, nil
}

// onMessage is the asynchronous subscription callback. It may fire
// before any Receive is in flight; the mailbox keeps the payload until
// a poll observes it.
func (ps *PubSub) onMessage(payload []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}
	ps.pending = payload
	ps.delivered = true
}

// Send publishes payload on the send topic.
func (ps *PubSub) Send(_ context.Context, payload []byte) error {
	ps.mu.Lock()
	closed := ps.closed
	ps.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return ps.bus.Publish(ps.sendTopic, payload)
}

// Receive polls the mailbox until a message is delivered or timeout
// elapses.
func (ps *PubSub) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := ps.clk.Now().Add(timeout)
	for {
		ps.mu.Lock()
		if ps.delivered {
			payload := ps.pending
			ps.pending = nil
			ps.delivered = false
			ps.mu.Unlock()
			return payload, nil
		}
		closed := ps.closed
		ps.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !ps.clk.Now().Before(deadline) {
			return nil, ErrTimeout
		}
		ps.clk.Sleep(receivePollInterval)
	}
}

// Close cancels the subscription and drops any undelivered message.
// Idempotent.
func (ps *PubSub) Close() error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil
	}
	ps.closed = true
	ps.pending = nil
	ps.delivered = false
	ps.mu.Unlock()

	ps.cancel()
	return nil
}
