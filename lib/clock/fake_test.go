// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	// Should not fire yet.
	select {
	case <-channel:
		t.Fatal("After fired before Advance")
	default:
	}

	clock.Advance(3 * time.Second)

	select {
	case <-channel:
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeClockAfterZeroDuration(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(0)

	select {
	case <-channel:
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeClockAfterPartialAdvance(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(5 * time.Second)

	clock.Advance(3 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before deadline")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at exact deadline")
	}
}

func TestFakeClockTickerFiresPerInterval(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Minute)
	defer ticker.Stop()

	clock.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	clock.Advance(time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after second interval")
	}
}

func TestFakeClockTickerDropsOverflow(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	// Advance across many intervals without draining. The channel
	// buffers one tick; the rest are dropped, matching time.Ticker.
	clock.Advance(10 * time.Second)

	received := 0
	for {
		select {
		case <-ticker.C:
			received++
			continue
		default:
		}
		break
	}
	if received != 1 {
		t.Fatalf("received %d buffered ticks, want 1", received)
	}
}

func TestFakeClockTickerStop(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}

	if got := clock.PendingCount(); got != 0 {
		t.Fatalf("PendingCount after Stop = %d, want 0", got)
	}
}

func TestFakeClockTickerNonPositivePanics(t *testing.T) {
	clock := Fake(epoch)
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) should panic")
		}
	}()
	clock.NewTicker(0)
}

func TestFakeClockSleepBlocksUntilAdvance(t *testing.T) {
	clock := Fake(epoch)

	done := make(chan struct{})
	go func() {
		clock.Sleep(4 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)

	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	clock.Advance(4 * time.Second)
	<-done
}

func TestFakeClockWaitForTimers(t *testing.T) {
	clock := Fake(epoch)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Sleep(time.Second)
		}()
	}

	clock.WaitForTimers(3)
	if got := clock.PendingCount(); got != 3 {
		t.Fatalf("PendingCount = %d, want 3", got)
	}

	clock.Advance(time.Second)
	wg.Wait()
}

func TestFakeClockConcurrentWaiters(t *testing.T) {
	clock := Fake(epoch)

	const waiters = 20
	var wg sync.WaitGroup
	for i := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Sleep(time.Duration(i+1) * time.Second)
		}()
	}

	clock.WaitForTimers(waiters)
	clock.Advance(waiters * time.Second)
	wg.Wait()
}

func TestRealClockBasics(t *testing.T) {
	clock := Real()

	before := time.Now()
	now := clock.Now()
	after := time.Now()
	if now.Before(before) || now.After(after) {
		t.Fatalf("Real Now() = %v outside [%v, %v]", now, before, after)
	}

	select {
	case <-clock.After(time.Millisecond):
	case <-time.After(5 * time.Second):
		t.Fatal("Real After(1ms) did not fire")
	}
}
