package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

var testDate = time.Date(2025, 4, 25, 0, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "refprices.db"))
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close storage: %v", err)
		}
	})
	return s
}

func TestSaveAndLoadCloses(t *testing.T) {
	s := newTestStorage(t)

	closes := map[string]float64{"NVDA": 102.71, "BABA": 118.97}
	if err := s.SaveCloses(testDate, closes); err != nil {
		t.Fatalf("SaveCloses failed: %v", err)
	}

	loaded, err := s.LoadCloses(testDate)
	if err != nil {
		t.Fatalf("LoadCloses failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 closes, got %d", len(loaded))
	}
	if loaded["NVDA"] != 102.71 {
		t.Errorf("Expected NVDA close 102.71, got %v", loaded["NVDA"])
	}
}

func TestLoadClosesMissingDate(t *testing.T) {
	s := newTestStorage(t)

	loaded, err := s.LoadCloses(testDate)
	if err != nil {
		t.Fatalf("LoadCloses failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Expected empty map for uncached date, got %d entries", len(loaded))
	}
}

func TestSaveClosesReplacesDate(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SaveCloses(testDate, map[string]float64{"NVDA": 100.00, "GONE": 5.0}); err != nil {
		t.Fatalf("SaveCloses failed: %v", err)
	}
	if err := s.SaveCloses(testDate, map[string]float64{"NVDA": 102.71}); err != nil {
		t.Fatalf("SaveCloses failed: %v", err)
	}

	loaded, err := s.LoadCloses(testDate)
	if err != nil {
		t.Fatalf("LoadCloses failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Expected replacement to drop stale rows, got %d entries", len(loaded))
	}
	if loaded["NVDA"] != 102.71 {
		t.Errorf("Expected NVDA close 102.71, got %v", loaded["NVDA"])
	}
}

func TestPurgeBefore(t *testing.T) {
	s := newTestStorage(t)

	old := testDate.AddDate(0, 0, -7)
	if err := s.SaveCloses(old, map[string]float64{"OLD": 1.0}); err != nil {
		t.Fatalf("SaveCloses failed: %v", err)
	}
	if err := s.SaveCloses(testDate, map[string]float64{"NVDA": 102.71}); err != nil {
		t.Fatalf("SaveCloses failed: %v", err)
	}

	if err := s.PurgeBefore(testDate); err != nil {
		t.Fatalf("PurgeBefore failed: %v", err)
	}

	oldLoaded, err := s.LoadCloses(old)
	if err != nil {
		t.Fatalf("LoadCloses failed: %v", err)
	}
	if len(oldLoaded) != 0 {
		t.Errorf("Expected old date purged, got %d entries", len(oldLoaded))
	}
	kept, err := s.LoadCloses(testDate)
	if err != nil {
		t.Fatalf("LoadCloses failed: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("Expected current date kept, got %d entries", len(kept))
	}
}

type countingSource struct {
	closes map[string]float64
	err    error
	calls  int
}

func (c *countingSource) DailyCloses(ctx context.Context, date time.Time) (map[string]float64, error) {
	c.calls++
	return c.closes, c.err
}

func TestCachedSourceFetchesOnMiss(t *testing.T) {
	s := newTestStorage(t)
	inner := &countingSource{closes: map[string]float64{"NVDA": 102.71}}
	src := NewCachedSource(s, inner)

	closes, err := src.DailyCloses(context.Background(), testDate)
	if err != nil {
		t.Fatalf("DailyCloses failed: %v", err)
	}
	if closes["NVDA"] != 102.71 {
		t.Errorf("Expected NVDA close 102.71, got %v", closes["NVDA"])
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", inner.calls)
	}
}

func TestCachedSourceHitSkipsUpstream(t *testing.T) {
	s := newTestStorage(t)
	inner := &countingSource{closes: map[string]float64{"NVDA": 102.71}}
	src := NewCachedSource(s, inner)

	if _, err := src.DailyCloses(context.Background(), testDate); err != nil {
		t.Fatalf("First DailyCloses failed: %v", err)
	}

	closes, err := src.DailyCloses(context.Background(), testDate)
	if err != nil {
		t.Fatalf("Second DailyCloses failed: %v", err)
	}
	if closes["NVDA"] != 102.71 {
		t.Errorf("Expected cached NVDA close 102.71, got %v", closes["NVDA"])
	}
	if inner.calls != 1 {
		t.Errorf("Expected cache hit to skip upstream, got %d calls", inner.calls)
	}
}

func TestCachedSourcePropagatesUpstreamError(t *testing.T) {
	s := newTestStorage(t)
	wantErr := errors.New("service down")
	src := NewCachedSource(s, &countingSource{err: wantErr})

	if _, err := src.DailyCloses(context.Background(), testDate); !errors.Is(err, wantErr) {
		t.Errorf("Expected upstream error, got %v", err)
	}
}
