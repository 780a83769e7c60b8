// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(5 * time.Second)

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		if !got.Equal(epoch.Add(5 * time.Second)) {
			t.Fatalf("fire time = %v, want %v", got, epoch.Add(5*time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if c.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d after firing, want 0", c.PendingCount())
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should be ready immediately")
	}
}

func TestFakeTickerReschedules(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		c.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}
	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount = %d, want 1", c.PendingCount())
	}

	ticker.Stop()
	c.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter goroutine was not released")
	}
}
