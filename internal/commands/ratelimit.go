package commands

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const bucketPruneThreshold = 1024

// Bucket limits how often one user may run the commands attached to it.
// A user gets Burst uses, refilled evenly over Window.
type Bucket struct {
	Name   string
	window time.Duration
	burst  int

	mu    sync.Mutex
	users map[string]*userLimit
	now   func() time.Time
}

type userLimit struct {
	limiter  *rate.Limiter
	notified bool
	lastSeen time.Time
}

// NewBucket creates a bucket allowing burst uses per window.
func NewBucket(name string, window time.Duration, burst int) *Bucket {
	if burst <= 0 {
		burst = 1
	}
	return &Bucket{
		Name:   name,
		window: window,
		burst:  burst,
		users:  make(map[string]*userLimit),
		now:    time.Now,
	}
}

// Take spends one use for userID. When the user is limited it returns the
// wait until the next use and whether this is the first rejection since the
// last allowed use.
func (b *Bucket) Take(userID string) (wait time.Duration, firstTry bool, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if len(b.users) > bucketPruneThreshold {
		b.pruneLocked(now)
	}

	u, exists := b.users[userID]
	if !exists {
		u = &userLimit{limiter: rate.NewLimiter(rate.Every(b.window/time.Duration(b.burst)), b.burst)}
		b.users[userID] = u
	}
	u.lastSeen = now

	r := u.limiter.ReserveN(now, 1)
	if !r.OK() {
		return b.window, false, false
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		u.notified = false
		return 0, false, true
	}

	r.CancelAt(now)
	firstTry = !u.notified
	u.notified = true
	return delay, firstTry, false
}

func (b *Bucket) pruneLocked(now time.Time) {
	for id, u := range b.users {
		if now.Sub(u.lastSeen) > b.window {
			delete(b.users, id)
		}
	}
}

// waitSeconds rounds a limiter delay up to whole seconds for replies.
func waitSeconds(d time.Duration) int {
	return int(math.Max(1, math.Ceil(d.Seconds())))
}
