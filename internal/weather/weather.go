/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package weather fetches the weather adjusted water percentage and watches
// network reachability.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/openhome/internal/telemetry"
	"github.com/friendsincode/openhome/internal/version"
)

// ErrBadResponse is returned when the weather service answer cannot be used.
var ErrBadResponse = errors.New("unusable weather response")

// Response is the weather service answer. Scale is the water percentage;
// a negative value means the service could not compute one.
type Response struct {
	Scale    int    `json:"scale"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Source queries an HTTP weather adjustment service.
type Source struct {
	url    string
	client *http.Client
}

// NewSource returns a source for url. Requests are bounded by ctx; the
// client timeout is a backstop.
func NewSource(url string) *Source {
	return &Source{
		url: url,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// WaterPercentage fetches the current scale.
func (s *Source) WaterPercentage(ctx context.Context) (pct int, err error) {
	ctx, span := telemetry.StartSpan(ctx, "weather.water_percentage")
	defer func() {
		span.SetAttributes(attribute.Int("weather.scale", pct))
		telemetry.EndSpan(span, err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("%w: HTTP %d", ErrBadResponse, resp.StatusCode)
	}
	var r Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&r); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if r.Error != "" {
		return 0, fmt.Errorf("%w: %s", ErrBadResponse, r.Error)
	}
	if r.Scale < 0 {
		return 0, fmt.Errorf("%w: negative scale %d", ErrBadResponse, r.Scale)
	}
	return r.Scale, nil
}

// Reporter receives network probe results.
type Reporter interface {
	ReportNetwork(ctx context.Context, ok bool) error
}

// NetworkProbe dials a TCP address periodically.
type NetworkProbe struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	logger   zerolog.Logger
}

// NewNetworkProbe checks addr (host:port) every interval.
func NewNetworkProbe(addr string, interval time.Duration, logger zerolog.Logger) *NetworkProbe {
	d := &net.Dialer{}
	return &NetworkProbe{
		addr:     addr,
		interval: interval,
		timeout:  5 * time.Second,
		dial:     d.DialContext,
		logger:   logger.With().Str("component", "network-probe").Logger(),
	}
}

// Check dials once.
func (p *NetworkProbe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", p.addr)
	if err != nil {
		p.logger.Debug().Err(err).Str("addr", p.addr).Msg("network check failed")
		return false
	}
	_ = conn.Close()
	return true
}

// Run probes until ctx is done, reporting every result.
func (p *NetworkProbe) Run(ctx context.Context, r Reporter) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	prev := true
	for {
		ok := p.Check(ctx)
		if ok != prev {
			if ok {
				p.logger.Info().Msg("network restored")
			} else {
				p.logger.Warn().Str("addr", p.addr).Msg("network unreachable")
			}
			prev = ok
		}
		rctx, cancel := context.WithTimeout(ctx, p.timeout)
		if err := r.ReportNetwork(rctx, ok); err != nil && ctx.Err() == nil {
			p.logger.Debug().Err(err).Msg("report network state")
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
