package weather

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWaterPercentage(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		want    int
		wantErr bool
	}{
		{"ok", http.StatusOK, `{"scale": 73, "location": "Boston"}`, 73, false},
		{"service error", http.StatusOK, `{"scale": -1, "error": "no data"}`, 0, true},
		{"negative", http.StatusOK, `{"scale": -5}`, 0, true},
		{"http error", http.StatusBadGateway, ``, 0, true},
		{"garbage", http.StatusOK, `scale=70`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasPrefix(r.Header.Get("User-Agent"), "OpenHome/") {
					t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			got, err := NewSource(srv.URL).WaterPercentage(context.Background())
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("scale = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWaterPercentageHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewSource(srv.URL).WaterPercentage(ctx); err == nil {
		t.Fatal("expected timeout error")
	}
}

type reports struct {
	mu sync.Mutex
	ok []bool
}

func (r *reports) ReportNetwork(_ context.Context, ok bool) error {
	r.mu.Lock()
	r.ok = append(r.ok, ok)
	r.mu.Unlock()
	return nil
}

func (r *reports) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ok)
}

func TestNetworkProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	p := NewNetworkProbe(ln.Addr().String(), 10*time.Millisecond, zerolog.Nop())
	if !p.Check(context.Background()) {
		t.Fatal("check against open listener failed")
	}

	p.dial = func(context.Context, string, string) (net.Conn, error) { return nil, errors.New("down") }
	if p.Check(context.Background()) {
		t.Fatal("check with failing dialer succeeded")
	}

	r := &reports{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, r)
		close(done)
	}()
	deadline := time.After(2 * time.Second)
	for r.len() < 2 {
		select {
		case <-deadline:
			t.Fatalf("got %d reports", r.len())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ok[0] {
		t.Fatal("failing probe reported ok")
	}
}
