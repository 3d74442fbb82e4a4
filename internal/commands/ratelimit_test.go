package commands

import (
	"testing"
	"time"
)

func TestBucket(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := NewBucket("test", 10*time.Second, 2)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, _, ok := b.Take("u1"); !ok {
			t.Fatalf("use %d rejected", i+1)
		}
	}

	wait, first, ok := b.Take("u1")
	if ok || !first || wait != 5*time.Second {
		t.Fatalf("third use: wait=%v first=%v ok=%v", wait, first, ok)
	}
	if _, first, ok := b.Take("u1"); ok || first {
		t.Fatalf("fourth use: first=%v ok=%v", first, ok)
	}

	if _, _, ok := b.Take("u2"); !ok {
		t.Error("other users share the limit")
	}

	now = now.Add(5 * time.Second)
	if _, _, ok := b.Take("u1"); !ok {
		t.Fatal("use after refill rejected")
	}
	if _, first, ok := b.Take("u1"); ok || !first {
		t.Errorf("rejection after an allowed use: first=%v ok=%v", first, ok)
	}
}

func TestWaitSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{5 * time.Second, 5},
		{5*time.Second + time.Millisecond, 6},
	}
	for _, tt := range tests {
		if got := waitSeconds(tt.in); got != tt.want {
			t.Errorf("waitSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
