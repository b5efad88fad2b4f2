package examtimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr(t time.Time) *time.Time { return &t }

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func TestDeriveBoundary(t *testing.T) {
	in := Input{StartTime: ptr(t0), TimeLimitMinutes: 90}
	deadline := t0.Add(90 * time.Minute)

	before := Derive(in, deadline.Add(-time.Second))
	assert.Equal(t, PhaseInProgress, before.Phase)
	assert.Equal(t, int64(1), before.RemainingSeconds())
	assert.Equal(t, deadline, *before.Deadline)

	at := Derive(in, deadline)
	assert.Equal(t, PhaseLocked, at.Phase)

	after := Derive(in, deadline.Add(time.Second))
	assert.True(t, after.Locked())
	assert.Equal(t, LockExpired, after.Reason)
	assert.Equal(t, int64(0), after.RemainingSeconds())
}

func TestDerivePrecedence(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		now  time.Time
		want Phase
	}{
		{"manual lock beats everything", Input{ManuallyLocked: true, ScheduledStart: ptr(t0.Add(time.Hour))}, t0, PhaseLocked},
		{"manual lock before start", Input{ManuallyLocked: true}, t0, PhaseLocked},
		{"waiting for schedule", Input{ScheduledStart: ptr(t0.Add(time.Minute)), TimeLimitMinutes: 30}, t0, PhaseWaitingForSchedule},
		{"schedule reached", Input{ScheduledStart: ptr(t0), TimeLimitMinutes: 30}, t0, PhaseReadyToStart},
		{"no schedule, not started", Input{TimeLimitMinutes: 30}, t0, PhaseReadyToStart},
		{"started", Input{StartTime: ptr(t0), TimeLimitMinutes: 30}, t0.Add(10 * time.Minute), PhaseInProgress},
		{"expired beats schedule", Input{StartTime: ptr(t0), TimeLimitMinutes: 30, ScheduledStart: ptr(t0.Add(24 * time.Hour))}, t0.Add(31 * time.Minute), PhaseLocked},
		{"zero limit locks on start", Input{StartTime: ptr(t0)}, t0, PhaseLocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Derive(tc.in, tc.now).Phase)
		})
	}
}

func TestWaitingReportsStartsIn(t *testing.T) {
	s := Derive(Input{ScheduledStart: ptr(t0.Add(5 * time.Minute))}, t0)
	assert.Equal(t, 5*time.Minute, s.StartsIn)
	assert.False(t, s.CanStart())
	assert.False(t, s.Locked())
}

func TestManualUnlockDoesNotReopenExpired(t *testing.T) {
	in := Input{StartTime: ptr(t0), TimeLimitMinutes: 10, ManuallyLocked: false}
	assert.True(t, Derive(in, t0.Add(11*time.Minute)).Locked())

	in.TimeLimitMinutes = 20
	assert.Equal(t, PhaseInProgress, Derive(in, t0.Add(11*time.Minute)).Phase)
}
