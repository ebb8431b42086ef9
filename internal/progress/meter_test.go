package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fakeClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time { return cur }
}

func advancingClock(start time.Time) (func() time.Time, func(time.Duration)) {
	cur := start
	now := func() time.Time { return cur }
	advance := func(d time.Duration) { cur = cur.Add(d) }
	return now, advance
}

func TestSnapshotBeforeFirstAddIsZeroRate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(fakeClock(start))
	m.Start(100)

	s := m.Snapshot()
	assert.Equal(t, int64(0), s.BytesDone)
	assert.Equal(t, int64(100), s.Total)
	assert.Zero(t, s.RateBps)
	assert.Zero(t, s.ETA)
	assert.Zero(t, s.Percent)
	assert.Equal(t, start, s.StartedAt)
}

func TestAddComputesRateAndPercent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now, advance := advancingClock(start)
	m := NewMeterWithNow(now)
	m.Start(1000)

	advance(time.Second)
	s := m.Add(500)

	assert.Equal(t, int64(500), s.BytesDone)
	assert.InDelta(t, 500.0, s.RateBps, 0.001)
	assert.InDelta(t, 50.0, s.Percent, 0.001)
	assert.Greater(t, s.ETA, time.Duration(0))
}

func TestAddSmoothsRateWithEWMA(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now, advance := advancingClock(start)
	m := NewMeterWithNow(now)
	m.Start(10000)

	advance(time.Second)
	first := m.Add(1000) // instant rate 1000 B/s, seeds rateBps directly

	advance(time.Second)
	second := m.Add(3000) // instant rate 3000 B/s, smoothed via alpha=0.2

	assert.InDelta(t, 1000.0, first.RateBps, 0.001)
	expected := 0.2*3000 + 0.8*1000
	assert.InDelta(t, expected, second.RateBps, 0.001)
}

func TestAddWithZeroElapsedDoesNotUpdateRate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMeterWithNow(fakeClock(start))
	m.Start(1000)

	s := m.Add(500)
	assert.Zero(t, s.RateBps)
	assert.Equal(t, int64(500), s.BytesDone)
}

func TestStartResetsPriorProgress(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now, advance := advancingClock(start)
	m := NewMeterWithNow(now)
	m.Start(100)
	advance(time.Second)
	m.Add(100)

	m.Start(50)
	s := m.Snapshot()
	assert.Equal(t, int64(0), s.BytesDone)
	assert.Equal(t, int64(50), s.Total)
	assert.Zero(t, s.RateBps)
}

func TestNoopReporterIsSafeToCall(t *testing.T) {
	var r Reporter = NoopReporter{}
	r.Start(10)
	r.Advance(5)
	r.Done()
}
