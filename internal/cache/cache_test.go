package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/protokb/pkg/models"
)

var epoch = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func TestCache_SetGetRoundTrip(t *testing.T) {
	clock := NewFakeClock(epoch)
	c := New[*models.ParsedDocument](DocumentTTL, clock)

	doc := &models.ParsedDocument{Content: "hello"}
	c.Set("a@1", doc)

	got, ok := c.Get("a@1")
	if !ok {
		t.Fatal("Get() should find a fresh entry")
	}
	if got != doc {
		t.Errorf("Get() returned a different pointer: %p, want %p", got, doc)
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	clock := NewFakeClock(epoch)
	c := New[string](time.Minute, clock)

	c.Set("k", "v")

	clock.Advance(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry should still be valid before TTL")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should be absent once the TTL has elapsed")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry should be removed on read, size = %d", c.Size())
	}
}

func TestCache_SetWithTTLOverridesDefault(t *testing.T) {
	clock := NewFakeClock(epoch)
	c := New[string](DocumentTTL, clock)

	c.SetWithTTL("short", "v", RecordTTL)
	c.Set("long", "v")

	clock.Advance(RecordTTL + time.Second)

	if _, ok := c.Get("short"); ok {
		t.Error("short-lived entry should have expired")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("default-TTL entry should still be valid")
	}
}

func TestCache_CleanupIsIdempotent(t *testing.T) {
	clock := NewFakeClock(epoch)
	c := New[int](time.Minute, clock)

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(30 * time.Second)
	c.Set("c", 3)
	clock.Advance(45 * time.Second)

	if removed := c.Cleanup(); removed != 2 {
		t.Errorf("first Cleanup() removed %d, want 2", removed)
	}
	if removed := c.Cleanup(); removed != 0 {
		t.Errorf("second Cleanup() removed %d, want 0", removed)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestCache_ClearAndDelete(t *testing.T) {
	c := New[int](time.Minute, nil)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key should be absent")
	}

	c.Clear()
	if c.Size() != 0 {
		t.Errorf("Size() after Clear() = %d, want 0", c.Size())
	}
}

func TestCache_ValuesSkipsExpired(t *testing.T) {
	clock := NewFakeClock(epoch)
	c := New[string](time.Minute, clock)

	c.Set("old", "old")
	clock.Advance(2 * time.Minute)
	c.Set("new", "new")

	values := c.Values()
	if len(values) != 1 || values[0] != "new" {
		t.Errorf("Values() = %v, want [new]", values)
	}
}

func TestCache_LastWriteWins(t *testing.T) {
	c := New[int](time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Set("k", n)
			c.Get("k")
		}(i)
	}
	wg.Wait()

	if _, ok := c.Get("k"); !ok {
		t.Error("key should be present after concurrent writes")
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestCache_RunJanitorStopsOnCancel(t *testing.T) {
	c := New[int](time.Nanosecond, nil)
	c.Set("a", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunJanitor(ctx, "test", time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for c.Size() != 0 {
		select {
		case <-deadline:
			t.Fatal("janitor did not sweep the expired entry")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunJanitor did not return after cancel")
	}
}
