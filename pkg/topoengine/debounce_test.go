package topoengine

import (
	"testing"
	"time"
)

func waitForValue(t *testing.T, ch <-chan int, want int) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("debouncer delivered %d, want %d", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for debounced value %d", want)
	}
}

func TestDebouncerFirstValueImmediate(t *testing.T) {
	applied := make(chan int, 1)
	// An hour-long window proves the first value does not wait for it.
	d := NewDebouncer(time.Hour, func(v int) { applied <- v })
	defer d.Stop()

	d.Set(42)
	waitForValue(t, applied, 42)
	if got := d.Value(); got != 42 {
		t.Errorf("Value() = %d, want 42", got)
	}
}

func TestDebouncerSettlesOnLastValue(t *testing.T) {
	applied := make(chan int, 8)
	d := NewDebouncer(50*time.Millisecond, func(v int) { applied <- v })
	defer d.Stop()

	d.Set(10)
	waitForValue(t, applied, 10)

	// A burst of slider positions; only the final one should land.
	for v := 11; v <= 15; v++ {
		d.Set(v)
	}
	if got := d.Value(); got != 10 {
		t.Errorf("value changed to %d before the window elapsed", got)
	}

	waitForValue(t, applied, 15)
	if got := d.Value(); got != 15 {
		t.Errorf("Value() = %d, want 15", got)
	}

	select {
	case v := <-applied:
		t.Errorf("extra apply of %d after settling", v)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebouncerRestartsWindow(t *testing.T) {
	applied := make(chan int, 8)
	d := NewDebouncer(200*time.Millisecond, func(v int) { applied <- v })
	defer d.Stop()

	d.Set(1)
	waitForValue(t, applied, 1)

	d.Set(2)
	time.Sleep(100 * time.Millisecond)
	d.Set(3)
	time.Sleep(100 * time.Millisecond)
	// 200ms since Set(2) but only 100ms since Set(3): still quiescing.
	if got := d.Value(); got != 1 {
		t.Errorf("Value() = %d before quiescence, want 1", got)
	}

	waitForValue(t, applied, 3)
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, nil)
	d.Set(1)
	d.Set(2)
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := d.Value(); got != 1 {
		t.Errorf("Value() = %d after Stop, want 1", got)
	}
}

func TestDebouncerNilCallback(t *testing.T) {
	d := NewDebouncer(0, nil) // zero window falls back to the default
	defer d.Stop()

	d.Set(5)
	if got := d.Value(); got != 5 {
		t.Errorf("Value() = %d, want 5", got)
	}
	d.Set(6)
	d.Set(7)

	deadline := time.Now().Add(2 * time.Second)
	for d.Value() != 7 {
		if time.Now().After(deadline) {
			t.Fatalf("Value() = %d, want 7 after default window", d.Value())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
