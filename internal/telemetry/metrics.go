/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openhome_api_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openhome_api_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openhome_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openhome_api_websocket_connections",
		Help: "Open status stream websockets.",
	})

	// Controller loop metrics
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "openhome_tick_duration_seconds",
		Help:    "Time spent in one control loop tick.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openhome_run_queue_depth",
		Help: "Live requests in the run queue.",
	})

	QueueOverflowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openhome_run_queue_overflow_total",
		Help: "Run requests dropped because the queue was full.",
	})

	StationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openhome_stations_active",
		Help: "Stations whose valve is open.",
	})

	StationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openhome_station_runs_total",
		Help: "Completed station runs by termination reason.",
	}, []string{"reason"})

	StationRunSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openhome_station_run_seconds_total",
		Help: "Total logged watering time.",
	})

	FlowPulsesPerWindow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openhome_flow_pulses_per_window",
		Help: "Flow pulses counted in the last 30s window.",
	})

	WaterPercentage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openhome_water_percentage",
		Help: "Current weather adjusted water percentage.",
	})

	RainDelayed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openhome_rain_delay_active",
		Help: "1 while a rain delay is active.",
	})

	SpecialSwitchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openhome_special_switch_total",
		Help: "Special station switch attempts by transport and result.",
	}, []string{"type", "result"})

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openhome_db_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openhome_db_errors_total",
		Help: "Failed database operations.",
	}, []string{"operation"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "openhome_db_connections_active",
		Help: "Open database connections.",
	})

	WeatherChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "openhome_weather_checks_total",
		Help: "Weather checks by result.",
	}, []string{"result"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
