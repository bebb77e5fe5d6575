package topology

import (
	"math"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

const (
	rttAlpha     = 0.2
	rttMinSample = 10
	rttMaxSample = 500
)

// rttTracker smooths a server's observed round-trip time with an
// exponentially weighted moving average (the value reported on
// ServerDescription.RoundTripTime) and additionally keeps a rolling
// window for minimum/90th-percentile RTT. The window stats are carried
// for a selection layer to consume; they never feed back into the SDAM
// state machine.
type rttTracker struct {
	mu sync.RWMutex

	average    time.Duration
	averageSet bool

	samples []time.Duration
	offset  int
}

func newRTTTracker(window time.Duration, interval time.Duration) *rttTracker {
	n := int(math.Max(rttMinSample, math.Min(rttMaxSample, float64(window/interval))))
	if n <= 0 {
		n = rttMinSample
	}
	return &rttTracker{samples: make([]time.Duration, n)}
}

// addSample records rtt and updates the EWMA: α=0.2, first sample seeds
// directly.
func (r *rttTracker) addSample(rtt time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.offset] = rtt
	r.offset = (r.offset + 1) % len(r.samples)

	if !r.averageSet {
		r.average = rtt
		r.averageSet = true
	} else {
		r.average = time.Duration(rttAlpha*float64(rtt) + (1-rttAlpha)*float64(r.average))
	}
	return r.average
}

// reset clears all state. Called on every probe failure, so the next
// successful probe seeds the average directly again.
func (r *rttTracker) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.samples {
		r.samples[i] = 0
	}
	r.offset = 0
	r.average = 0
	r.averageSet = false
}

// average90 returns the EWMA and the 90th-percentile observed RTT over
// the rolling window. The percentile is zero until at least
// rttMinSample non-zero samples have been recorded.
func (r *rttTracker) average90() (time.Duration, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.average, percentile90(r.samples)
}

// minRTT returns the minimum observed RTT over the rolling window, or
// zero until at least rttMinSample non-zero samples have been recorded.
func (r *rttTracker) minRTT() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	min := time.Duration(math.MaxInt64)
	for _, s := range r.samples {
		if s > 0 {
			count++
			if s < min {
				min = s
			}
		}
	}
	if count < rttMinSample {
		return 0
	}
	return min
}

func percentile90(samples []time.Duration) time.Duration {
	floats := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s > 0 {
			floats = append(floats, float64(s))
		}
	}
	if len(floats) < rttMinSample {
		return 0
	}
	p, err := stats.Percentile(floats, 90.0)
	if err != nil {
		return 0
	}
	return time.Duration(p)
}
