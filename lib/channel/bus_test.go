// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gbhanda/volttron/lib/testutil"
)

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	cancel, err := bus.Subscribe("orders", func(payload []byte) {
		mu.Lock()
		got = append(got, string(payload))
		complete := len(got) == 3
		mu.Unlock()
		if complete {
			close(done)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	for _, payload := range []string{"a", "b", "c"} {
		if err := bus.Publish("orders", []byte(payload)); err != nil {
			t.Fatal(err)
		}
	}

	testutil.RequireClosed(t, done, 5*time.Second, "waiting for deliveries")
	mu.Lock()
	defer mu.Unlock()
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("delivery order = %v, want [a b c]", got)
	}
}

func TestBusTopicIsolation(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	delivered := make(chan []byte, 1)
	cancel, err := bus.Subscribe("mine", func(payload []byte) { delivered <- payload })
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := bus.Publish("other", []byte("not for me")); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish("mine", []byte("for me")); err != nil {
		t.Fatal(err)
	}

	got := testutil.RequireReceive(t, delivered, 5*time.Second, "waiting for delivery")
	if string(got) != "for me" {
		t.Errorf("delivered = %q, want %q", got, "for me")
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	if err := bus.Publish("empty", []byte("dropped")); err != nil {
		t.Errorf("Publish to empty topic = %v, want nil", err)
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	delivered := make(chan []byte, 4)
	cancel, err := bus.Subscribe("t", func(payload []byte) { delivered <- payload })
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	cancel() // idempotent

	if err := bus.Publish("t", []byte("after cancel")); err != nil {
		t.Fatal(err)
	}
	select {
	case payload := <-delivered:
		t.Fatalf("delivery after cancel: %q", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBusCloseRejectsOperations(t *testing.T) {
	bus := NewBus()
	bus.Close()
	bus.Close() // idempotent

	if err := bus.Publish("t", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish on closed bus = %v, want ErrClosed", err)
	}
	if _, err := bus.Subscribe("t", func([]byte) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe on closed bus = %v, want ErrClosed", err)
	}
}
