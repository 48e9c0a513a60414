package timer_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/victornm/liveq/internal/timer"
)

type recorder struct {
	ticks chan int
	ends  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		ticks: make(chan int, 64),
		ends:  make(chan struct{}, 8),
	}
}

func (r *recorder) callbacks() timer.Callbacks {
	return timer.Callbacks{
		OnTick: func(remaining int, _ bool) { r.ticks <- remaining },
		OnEnd:  func() { r.ends <- struct{}{} },
	}
}

func (r *recorder) tick(t *testing.T) int {
	t.Helper()
	select {
	case v := <-r.ticks:
		return v
	case <-time.After(time.Second):
		t.Fatal("no tick received")
		return 0
	}
}

func (r *recorder) end(t *testing.T) {
	t.Helper()
	select {
	case <-r.ends:
	case <-time.After(time.Second):
		t.Fatal("no end received")
	}
}

func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case v := <-r.ticks:
		t.Fatalf("unexpected tick: %d", v)
	case <-r.ends:
		t.Fatal("unexpected end")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCountdown_TicksDownToEnd(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := timer.New(fc)
	rec := newRecorder()

	c.Start(3, rec.callbacks())

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	require.Equal(t, 2, rec.tick(t))

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	require.Equal(t, 1, rec.tick(t))

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	rec.end(t)

	require.False(t, c.Running())
}

func TestCountdown_EndWithoutTickOnOneSecond(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := timer.New(fc)
	rec := newRecorder()

	c.Start(1, rec.callbacks())

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	rec.end(t)
	rec.quiet(t)
}

func TestCountdown_PauseFreezesRemaining(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := timer.New(fc)
	rec := newRecorder()

	c.Start(10, rec.callbacks())

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	require.Equal(t, 9, rec.tick(t))

	fc.BlockUntil(1)
	c.Pause()
	require.Equal(t, 9, c.Remaining())
	require.False(t, c.Running())

	// The in-flight tick must not fire callbacks after Pause.
	fc.Advance(time.Second)
	rec.quiet(t)
	require.Equal(t, 9, c.Remaining())

	// Resume from where we left off.
	c.Start(c.Remaining(), rec.callbacks())
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	require.Equal(t, 8, rec.tick(t))
}

func TestCountdown_StopIsIdempotentAndGuardsStragglers(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := timer.New(fc)
	rec := newRecorder()

	c.Start(5, rec.callbacks())
	fc.BlockUntil(1)

	c.Stop()
	c.Stop()
	require.Equal(t, 0, c.Remaining())

	fc.Advance(time.Second)
	rec.quiet(t)
}

func TestCountdown_RestartAfterStop(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := timer.New(fc)
	rec := newRecorder()

	c.Start(5, rec.callbacks())
	fc.BlockUntil(1)
	c.Stop()

	c.Start(2, rec.callbacks())
	fc.BlockUntil(1)
	fc.Advance(time.Second)
	require.Equal(t, 1, rec.tick(t))
}

func TestCountdown_AlertCadence(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := timer.New(fc)

	var alerts []bool
	rec := newRecorder()
	cb := timer.Callbacks{
		OnTick: func(remaining int, alert bool) {
			alerts = append(alerts, alert)
			rec.ticks <- remaining
		},
		OnEnd: func() { rec.ends <- struct{}{} },
	}

	c.Start(4, cb)
	fc.BlockUntil(1)

	c.StartAlert()
	require.True(t, c.Alerting())

	// The in-flight interval was scheduled at the normal cadence.
	fc.Advance(time.Second)
	require.Equal(t, 3, rec.tick(t))

	// From here every quarter second consumes one remaining second.
	fc.BlockUntil(1)
	fc.Advance(250 * time.Millisecond)
	require.Equal(t, 2, rec.tick(t))

	fc.BlockUntil(1)
	fc.Advance(250 * time.Millisecond)
	require.Equal(t, 1, rec.tick(t))

	fc.BlockUntil(1)
	fc.Advance(250 * time.Millisecond)
	rec.end(t)

	require.Equal(t, []bool{true, true, true}, alerts)
}

func TestCountdown_AlertNoOpWhenStopped(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := timer.New(fc)

	c.StartAlert()
	require.False(t, c.Alerting())
}
