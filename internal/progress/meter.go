// Package progress instruments the Bulk Copy Engine's push/pull loops with
// byte-level progress reporting. Meter's rate/ETA smoothing is grounded on
// sheerbytes/Thruflux's internal/progress.Meter; Reporter's console
// implementation renders through github.com/schollz/progressbar/v3, colors
// status text with github.com/mitchellh/colorstring, and uses
// golang.org/x/term to decide whether stdout is worth drawing a bar on.
package progress

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of transfer progress.
type Stats struct {
	BytesDone int64
	Total     int64
	RateBps   float64
	ETA       time.Duration
	Percent   float64
	StartedAt time.Time
}

// Meter tracks byte progress for one transfer and computes an
// exponentially-smoothed throughput estimate.
type Meter struct {
	mu        sync.Mutex
	total     int64
	done      int64
	startedAt time.Time
	lastAt    time.Time
	lastDone  int64
	rateBps   float64
	alpha     float64
	now       func() time.Time
}

// NewMeter returns a meter using the real wall clock.
func NewMeter() *Meter { return NewMeterWithNow(time.Now) }

// NewMeterWithNow returns a meter using a caller-supplied clock, for tests.
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{alpha: 0.2, now: now}
}

// Start resets the meter for a transfer of totalBytes.
func (m *Meter) Start(totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = totalBytes
	m.done = 0
	m.startedAt = m.now()
	m.lastAt = m.startedAt
	m.lastDone = 0
	m.rateBps = 0
}

// Add records n additional bytes transferred and returns the updated
// snapshot.
func (m *Meter) Add(n int) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done += int64(n)

	now := m.now()
	dt := now.Sub(m.lastAt).Seconds()
	if dt > 0 {
		instant := float64(m.done-m.lastDone) / dt
		if m.rateBps == 0 {
			m.rateBps = instant
		} else {
			m.rateBps = m.alpha*instant + (1-m.alpha)*m.rateBps
		}
		m.lastAt = now
		m.lastDone = m.done
	}
	return m.snapshot(now)
}

// Snapshot returns the current progress without recording new bytes.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(m.now())
}

func (m *Meter) snapshot(now time.Time) Stats {
	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total) * 100
	}
	var eta time.Duration
	if m.rateBps > 0 && m.total > m.done {
		eta = time.Duration(float64(m.total-m.done)/m.rateBps) * time.Second
	}
	return Stats{
		BytesDone: m.done,
		Total:     m.total,
		RateBps:   m.rateBps,
		ETA:       eta,
		Percent:   pct,
		StartedAt: m.startedAt,
	}
}

// Reporter receives progress updates from the bulk copy engine. A nil
// Reporter must not be called; NoopReporter is the safe stand-in.
type Reporter interface {
	Start(total int64)
	Advance(n int)
	Done()
}

// NoopReporter discards every update; used when no progress display is
// wanted (e.g. non-interactive daemon operation).
type NoopReporter struct{}

func (NoopReporter) Start(int64) {}
func (NoopReporter) Advance(int) {}
func (NoopReporter) Done()       {}
