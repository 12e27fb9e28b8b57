/*
Copyright © 2026 the locisol authors.
This file is part of locisol.

locisol is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

locisol is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with locisol.  If not, see <http://www.gnu.org/licenses/>.
*/

package locisol

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Throttle bounds how many solver calls run at once and, optionally, how
// many start per second.
type Throttle struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	inFlight int64
	capacity int
}

// NewThrottle returns a Throttle allowing at most concurrency calls at a
// time and perSecond new calls per second, with bursts of up to burst
// calls. A perSecond of zero or less disables the rate limit.
func NewThrottle(concurrency int, perSecond float64, burst int) (*Throttle, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("locisol: throttle concurrency must be at least 1, have %d", concurrency)
	}
	t := &Throttle{
		sem:      semaphore.NewWeighted(int64(concurrency)),
		capacity: concurrency,
	}
	if perSecond > 0 && !math.IsInf(perSecond, 1) {
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return t, nil
}

// Acquire blocks until a call may proceed or ctx is done. The returned
// release function must be called when the call is finished; calling it
// more than once has no further effect.
func (t *Throttle) Acquire(ctx context.Context) (release func(), err error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			t.sem.Release(1)
			return nil, err
		}
	}
	atomic.AddInt64(&t.inFlight, 1)
	var once sync.Once
	return func() {
		once.Do(func() {
			atomic.AddInt64(&t.inFlight, -1)
			t.sem.Release(1)
		})
	}, nil
}

// InFlight returns the number of calls currently holding a slot.
func (t *Throttle) InFlight() int { return int(atomic.LoadInt64(&t.inFlight)) }

// Capacity returns the maximum number of concurrent calls.
func (t *Throttle) Capacity() int { return t.capacity }
