/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards controller events from the in-process bus to
// external brokers.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/events"
)

// SubjectPrefix prefixes every forwarded subject or channel.
const SubjectPrefix = "openhome.events."

// Sink is an external broker.
type Sink interface {
	Name() string
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Message is the wire format of a forwarded event.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// Subject returns the broker subject for an event type.
func Subject(t events.EventType) string {
	return SubjectPrefix + string(t)
}

// Marshal encodes an event for the wire.
func Marshal(t events.EventType, p events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(Message{
		EventType: t,
		Payload:   p,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

// Unmarshal parses a forwarded event.
func Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}

// NodeID identifies this controller in forwarded messages.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "openhome"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Bridge subscribes to the local bus and publishes to every sink.
type Bridge struct {
	bus     *events.Bus
	sinks   []Sink
	nodeID  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewBridge creates a bridge. Sinks may be empty.
func NewBridge(bus *events.Bus, nodeID string, logger zerolog.Logger, sinks ...Sink) *Bridge {
	return &Bridge{
		bus:     bus,
		sinks:   sinks,
		nodeID:  nodeID,
		timeout: 2 * time.Second,
		logger:  logger.With().Str("component", "eventbus").Logger(),
	}
}

// Run forwards events until ctx is done, then closes the sinks.
func (b *Bridge) Run(ctx context.Context) {
	if len(b.sinks) == 0 {
		return
	}
	var wg sync.WaitGroup
	types := events.Types()
	subs := make([]events.Subscriber, len(types))
	for i, t := range types {
		subs[i] = b.bus.Subscribe(t)
		wg.Add(1)
		go func(t events.EventType, ch events.Subscriber) {
			defer wg.Done()
			for p := range ch {
				b.forward(ctx, t, p)
			}
		}(t, subs[i])
	}
	b.logger.Info().Int("sinks", len(b.sinks)).Int("events", len(types)).Msg("event bridge started")

	<-ctx.Done()
	for i, t := range types {
		b.bus.Unsubscribe(t, subs[i])
	}
	wg.Wait()
	for _, s := range b.sinks {
		if err := s.Close(); err != nil {
			b.logger.Warn().Err(err).Str("sink", s.Name()).Msg("close sink")
		}
	}
}

func (b *Bridge) forward(ctx context.Context, t events.EventType, p events.Payload) {
	data, err := Marshal(t, p, b.nodeID)
	if err != nil {
		b.logger.Error().Err(err).Str("event", string(t)).Msg("marshal event")
		return
	}
	subject := Subject(t)
	for _, s := range b.sinks {
		pctx, cancel := context.WithTimeout(ctx, b.timeout)
		if err := s.Publish(pctx, subject, data); err != nil {
			b.logger.Debug().Err(err).Str("sink", s.Name()).Str("subject", subject).Msg("publish failed")
		}
		cancel()
	}
}
