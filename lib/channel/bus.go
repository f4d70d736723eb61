// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"fmt"
	"sync"
)

// Handler consumes one published payload. Handlers run on the
// subscription's delivery goroutine, one at a time, in publish order.
type Handler func(payload []byte)

// Bus is an in-process publish/subscribe broker. Publish is
// asynchronous: it enqueues the payload for every current subscriber of
// the topic and returns. Each subscription drains its own unbounded
// queue on a dedicated goroutine, so a slow handler delays only its own
// subscription.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]*subscription
	closed bool
}

// NewBus creates an empty broker.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

type subscription struct {
	mu      sync.Mutex
	wake    *sync.Cond
	queue   [][]byte
	stopped bool
}

func newSubscription() *subscription {
	s := &subscription{}
	s.wake = sync.NewCond(&s.mu)
	return s
}

// Subscribe registers handler for every payload published to topic.
// The returned cancel function stops delivery; it is idempotent and
// waits for no in-flight handler.
func (b *Bus) Subscribe(topic string, handler Handler) (cancel func(), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %q on closed bus: %w", topic, ErrClosed)
	}

	sub := newSubscription()
	b.subs[topic] = append(b.subs[topic], sub)
	go sub.deliver(handler)

	return func() {
		b.mu.Lock()
		remaining := b.subs[topic][:0]
		for _, s := range b.subs[topic] {
			if s != sub {
				remaining = append(remaining, s)
			}
		}
		b.subs[topic] = remaining
		b.mu.Unlock()
		sub.stop()
	}, nil
}

// Publish enqueues payload for every current subscriber of topic.
// Publishing to a topic with no subscribers is not an error — the
// payload is dropped, matching pub/sub semantics.
func (b *Bus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("publish %q on closed bus: %w", topic, ErrClosed)
	}
	for _, sub := range b.subs[topic] {
		sub.enqueue(payload)
	}
	return nil
}

// Close stops all subscriptions. Further Publish and Subscribe calls
// fail.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	all := b.subs
	b.subs = make(map[string][]*subscription)
	b.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.stop()
		}
	}
}

func (s *subscription) enqueue(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.queue = append(s.queue, payload)
	s.wake.Signal()
}

func (s *subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.wake.Signal()
}

// deliver drains the queue, invoking handler outside the lock so a
// handler can publish back onto the bus without deadlocking.
func (s *subscription) deliver(handler Handler) {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.wake.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		payload := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		handler(payload)
	}
}
