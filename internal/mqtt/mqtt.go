/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mqtt publishes station state to an MQTT broker and accepts rain
// and water level inputs from it.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/events"
)

const publishTimeout = 5 * time.Second

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client not connected")

// Config describes the broker connection.
type Config struct {
	Broker      string // e.g. tcp://broker:1883
	ClientID    string
	TopicPrefix string
}

// WaterLevelSetter receives water percentages from the broker.
type WaterLevelSetter interface {
	SetWaterPercentage(ctx context.Context, pct int) error
}

// RainInput receives remote rain sensor readings.
type RainInput interface {
	Set(raining bool)
}

// Client bridges the event bus and the broker.
type Client struct {
	client paho.Client
	cfg    Config
	bus    *events.Bus
	water  WaterLevelSetter
	rain   RainInput
	logger zerolog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewClient prepares a client. Call Connect, then Run.
func NewClient(cfg Config, bus *events.Bus, water WaterLevelSetter, rain RainInput, logger zerolog.Logger) *Client {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "openhome"
	}
	c := &Client{
		cfg:    cfg,
		bus:    bus,
		water:  water,
		rain:   rain,
		logger: logger.With().Str("component", "mqtt").Logger(),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWill(c.topic("online"), "0", 1, true)

	// Subscriptions are renewed on every (re)connect because the session is clean.
	opts.SetOnConnectHandler(func(pc paho.Client) {
		c.setConnected(true)
		c.logger.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
		pc.Publish(c.topic("online"), 1, true, "1")
		c.subscribe(pc)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.setConnected(false)
		c.logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	c.client = paho.NewClient(opts)
	return c
}

func (c *Client) topic(suffix string) string {
	return c.cfg.TopicPrefix + "/" + suffix
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// IsConnected reports the broker connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Connect waits for the first broker connection or ctx.
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	token := c.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (c *Client) subscribe(pc paho.Client) {
	handlers := map[string]paho.MessageHandler{
		c.topic("rain"): func(_ paho.Client, m paho.Message) {
			if err := c.handleRain(m.Payload()); err != nil {
				c.logger.Warn().Err(err).Str("topic", m.Topic()).Msg("ignoring rain message")
			}
		},
		c.topic("waterlevel"): func(_ paho.Client, m paho.Message) {
			if err := c.handleWaterLevel(m.Payload()); err != nil {
				c.logger.Warn().Err(err).Str("topic", m.Topic()).Msg("ignoring water level message")
			}
		},
	}
	for topic, h := range handlers {
		token := pc.Subscribe(topic, 1, h)
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			c.logger.Error().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
		}
	}
}

func (c *Client) handleRain(payload []byte) error {
	raining, err := parseSwitch(payload)
	if err != nil {
		return err
	}
	if c.rain != nil {
		c.rain.Set(raining)
	}
	return nil
}

func (c *Client) handleWaterLevel(payload []byte) error {
	pct, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return fmt.Errorf("water level %q: %w", payload, err)
	}
	if c.water == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.water.SetWaterPercentage(ctx, pct); err != nil {
		return err
	}
	c.bus.Publish(events.EventAuditWaterLevel, events.Payload{"subject": "mqtt", "percentage": pct})
	return nil
}

// parseSwitch accepts the usual broker spellings of a boolean.
func parseSwitch(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "1", "on", "true", "yes", "rain":
		return true, nil
	case "0", "off", "false", "no", "dry":
		return false, nil
	}
	return false, fmt.Errorf("unrecognised switch value %q", payload)
}

// stateMessage maps a bus event to a topic and payload. ok is false for
// events that are not published. Station topics are numbered from 1.
func (c *Client) stateMessage(t events.EventType, p events.Payload) (topic string, payload []byte, retained bool, ok bool) {
	switch t {
	case events.EventStationOn, events.EventStationOff:
		sid, found := p["station"].(int)
		if !found {
			return "", nil, false, false
		}
		state := "0"
		if t == events.EventStationOn {
			state = "1"
		}
		return c.topic(fmt.Sprintf("station/%d", sid+1)), []byte(state), true, true
	case events.EventProgramBusy, events.EventProgramIdle:
		state := "0"
		if t == events.EventProgramBusy {
			state = "1"
		}
		return c.topic("busy"), []byte(state), true, true
	case events.EventRunLogged, events.EventFlowSample, events.EventWaterLevel,
		events.EventRainDelayStart, events.EventRainDelayStop, events.EventRainSensorChange:
		data, err := json.Marshal(p)
		if err != nil {
			return "", nil, false, false
		}
		return c.topic("event/" + string(t)), data, false, true
	}
	return "", nil, false, false
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	return token.Error()
}

// Run forwards controller events to the broker until ctx is done.
func (c *Client) Run(ctx context.Context) {
	var wg sync.WaitGroup
	types := events.Types()
	subs := make([]events.Subscriber, len(types))
	for i, t := range types {
		subs[i] = c.bus.Subscribe(t)
		wg.Add(1)
		go func(t events.EventType, ch events.Subscriber) {
			defer wg.Done()
			for p := range ch {
				topic, payload, retained, ok := c.stateMessage(t, p)
				if !ok {
					continue
				}
				if err := c.publish(topic, payload, retained); err != nil {
					c.logger.Debug().Err(err).Str("topic", topic).Msg("publish failed")
				}
			}
		}(t, subs[i])
	}

	<-ctx.Done()
	for i, t := range types {
		c.bus.Unsubscribe(t, subs[i])
	}
	wg.Wait()
	if c.IsConnected() {
		c.client.Publish(c.topic("online"), 1, true, "0").WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	c.logger.Info().Msg("mqtt client stopped")
}
