package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEndSpanRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartSpan(context.Background(), "special_station.switch", attribute.Int("station", 4))
	EndSpan(span, errors.New("special station call timed out"))
	_, span = StartSpan(context.Background(), "weather.water_percentage")
	EndSpan(span, nil)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	failed := spans[0]
	if failed.Status().Code != codes.Error || !strings.Contains(failed.Status().Description, "timed out") {
		t.Fatalf("status = %+v", failed.Status())
	}
	if len(failed.Events()) != 1 || failed.Events()[0].Name != "exception" {
		t.Fatalf("events = %+v", failed.Events())
	}
	if spans[1].Status().Code == codes.Error {
		t.Fatal("successful span marked as error")
	}
}

func TestSampler(t *testing.T) {
	cases := []struct {
		rate float64
		want string
	}{
		{1, "root:AlwaysOnSampler"},
		{2, "root:AlwaysOnSampler"},
		{0, "root:AlwaysOffSampler"},
		{-1, "root:AlwaysOffSampler"},
		{0.25, "root:TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		if got := Sampler(tc.rate).Description(); !strings.Contains(got, tc.want) {
			t.Errorf("Sampler(%v) = %s, want it to contain %s", tc.rate, got, tc.want)
		}
	}
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
