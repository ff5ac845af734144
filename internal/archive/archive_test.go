package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/runlog"
)

type fakeSource struct {
	recs   []runlog.Record
	pruned bool
}

func (f *fakeSource) Before(context.Context, time.Time) ([]runlog.Record, error) { return f.recs, nil }

func (f *fakeSource) Prune(context.Context, time.Time) (int64, error) {
	f.pruned = true
	return int64(len(f.recs)), nil
}

type memStore struct {
	objects map[string][]byte
	err     error
}

func (m *memStore) Put(_ context.Context, key string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.objects[key] = data
	return nil
}

func TestKey(t *testing.T) {
	got := Key(time.Date(2026, 3, 7, 4, 5, 6, 0, time.UTC))
	if want := "runlog/2026/03/20260307T040506Z.ndjson"; got != want {
		t.Fatalf("Key = %q, want %q", got, want)
	}
}

func TestRun(t *testing.T) {
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []runlog.Record{
		{Kind: runlog.KindStation, Station: 1, Duration: 60, EndTime: cutoff.Add(-time.Hour)},
		{Kind: runlog.KindRainDelay, Duration: 3600, EndTime: cutoff.Add(-time.Minute)},
	}

	cases := []struct {
		name       string
		store      *memStore
		wantErr    bool
		wantPruned bool
		wantObject bool
	}{
		{"uploads then prunes", &memStore{objects: map[string][]byte{}}, false, true, true},
		{"upload failure keeps rows", &memStore{objects: map[string][]byte{}, err: errors.New("denied")}, true, false, false},
		{"no store prunes only", nil, false, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &fakeSource{recs: recs}
			var store ObjectStore
			if tc.store != nil {
				store = tc.store
			}
			n, err := New(src, store, zerolog.Nop()).Run(context.Background(), cutoff)
			if tc.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if src.pruned != tc.wantPruned {
				t.Fatalf("pruned = %v, want %v", src.pruned, tc.wantPruned)
			}
			if tc.wantPruned && n != 2 {
				t.Fatalf("removed = %d, want 2", n)
			}
			if !tc.wantObject {
				return
			}
			data, ok := tc.store.objects[Key(cutoff)]
			if !ok {
				t.Fatalf("objects = %v", tc.store.objects)
			}
			lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
			if len(lines) != 2 {
				t.Fatalf("archived %d lines, want 2", len(lines))
			}
			var first runlog.Record
			if err := json.Unmarshal(lines[0], &first); err != nil || first.Station != 1 {
				t.Fatalf("first record = %+v, err %v", first, err)
			}
		})
	}
}

func TestRunNothingToArchive(t *testing.T) {
	src := &fakeSource{}
	store := &memStore{objects: map[string][]byte{}}
	n, err := New(src, store, zerolog.Nop()).Run(context.Background(), time.Now())
	if err != nil || n != 0 || src.pruned || len(store.objects) != 0 {
		t.Fatalf("n=%d err=%v pruned=%v objects=%d", n, err, src.pruned, len(store.objects))
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Fatal("expected missing bucket error")
	}
}
