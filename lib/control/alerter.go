// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"time"

	"github.com/gbhanda/volttron/lib/channel"
	"github.com/gbhanda/volttron/lib/clock"
	"github.com/gbhanda/volttron/lib/codec"
)

// DefaultAlertTopic is the bus topic health alerts are published on.
const DefaultAlertTopic = "alerts/agent"

// Alert is the envelope published for each operator notification.
type Alert struct {
	Key     string    `cbor:"key"`
	Message string    `cbor:"message"`
	Time    time.Time `cbor:"time"`
}

// BusAlerter publishes alerts on a message bus topic. Delivery is
// fire-and-forget: subscribers that show up later miss earlier alerts.
type BusAlerter struct {
	bus   *channel.Bus
	topic string
	clk   clock.Clock
}

// NewBusAlerter creates an alerter publishing on topic; an empty topic
// selects DefaultAlertTopic.
func NewBusAlerter(bus *channel.Bus, topic string, clk clock.Clock) *BusAlerter {
	if topic == "" {
		topic = DefaultAlertTopic
	}
	return &BusAlerter{bus: bus, topic: topic, clk: clk}
}

// SendAlert publishes one alert envelope.
func (a *BusAlerter) SendAlert(_ context.Context, key, message string) error {
	payload, err := codec.Marshal(Alert{
		Key:     key,
		Message: message,
		Time:    a.clk.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	if err := a.bus.Publish(a.topic, payload); err != nil {
		return fmt.Errorf("publishing alert: %w", err)
	}
	return nil
}
