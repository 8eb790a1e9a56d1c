package screening

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeCalculator struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]bool
	result Snapshot
}

func (f *fakeCalculator) ShouldUpdate(idx int, closeTime, lastUpdate time.Time) bool { return true }

func (f *fakeCalculator) Calculate(ctx context.Context, preset string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, preset)
	if f.fail[preset] {
		return Snapshot{}, errors.New("calculate failed")
	}
	snap := f.result
	snap.Preset = preset
	return snap, nil
}

type fakeWriter struct {
	mu      sync.Mutex
	written map[string]Snapshot
}

func newFakeWriter() *fakeWriter { return &fakeWriter{written: make(map[string]Snapshot)} }

func (w *fakeWriter) UpdateScreening(preset string, result Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written[preset] = result
}

func TestRefreshAll_WritesEveryPreset(t *testing.T) {
	calc := &fakeCalculator{result: Snapshot{ComputedAt: time.Unix(1000, 0)}}
	writer := newFakeWriter()
	sched := NewScheduler(nil, calc, writer, []string{"default", "momentum"})

	sched.refreshAll(context.Background())

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.written) != 2 {
		t.Fatalf("expected 2 presets written, got %d", len(writer.written))
	}
	if writer.written["default"].Preset != "default" {
		t.Errorf("default snapshot preset = %s", writer.written["default"].Preset)
	}
}

func TestRefreshAll_SkipsFailedPresetButContinues(t *testing.T) {
	calc := &fakeCalculator{fail: map[string]bool{"bad": true}}
	writer := newFakeWriter()
	sched := NewScheduler(nil, calc, writer, []string{"bad", "good"})

	sched.refreshAll(context.Background())

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if _, ok := writer.written["bad"]; ok {
		t.Error("a failed calculate should not write a snapshot")
	}
	if _, ok := writer.written["good"]; !ok {
		t.Error("a later preset must still be refreshed after an earlier one fails")
	}
}

func TestStart_IsIdempotent(t *testing.T) {
	calc := &fakeCalculator{}
	writer := newFakeWriter()
	sched := NewScheduler(nil, calc, writer, []string{"default"})

	if err := sched.Start(context.Background(), "*/5 * * * *"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := sched.Start(context.Background(), "*/5 * * * *"); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if len(sched.entryIDs) != 1 {
		t.Errorf("expected exactly 1 registered cron entry after two Start calls, got %d", len(sched.entryIDs))
	}
	sched.Stop()
}
