/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventStationOn        EventType = "station.on"
	EventStationOff       EventType = "station.off"
	EventRunLogged        EventType = "run.logged"
	EventProgramBusy      EventType = "program.busy"
	EventProgramIdle      EventType = "program.idle"
	EventRainDelayStart   EventType = "rain_delay.start"
	EventRainDelayStop    EventType = "rain_delay.stop"
	EventRainSensorChange EventType = "rain_sensor.change"
	EventFlowSample       EventType = "flow.sample"
	EventQueueOverflow    EventType = "queue.overflow"
	EventWaterLevel       EventType = "water_level"
	EventSafeReboot       EventType = "safe_reboot"

	// Operator commands, consumed by the audit service
	EventAuditProgramRun     EventType = "audit.program.run"
	EventAuditStationRun     EventType = "audit.station.run"
	EventAuditStationStop    EventType = "audit.station.stop"
	EventAuditReset          EventType = "audit.reset"
	EventAuditRainDelay      EventType = "audit.raindelay"
	EventAuditEnable         EventType = "audit.enable"
	EventAuditWaterLevel     EventType = "audit.waterlevel"
	EventAuditConfigReload   EventType = "audit.config.reload"
	EventAuditSettingsChange EventType = "audit.settings.change"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events; the
// control loop publishes and must never block.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}

// Types lists the controller event types bridged to external brokers.
func Types() []EventType {
	return []EventType{
		EventStationOn, EventStationOff, EventRunLogged, EventProgramBusy,
		EventProgramIdle, EventRainDelayStart, EventRainDelayStop,
		EventRainSensorChange, EventFlowSample, EventQueueOverflow,
		EventWaterLevel, EventSafeReboot,
	}
}
