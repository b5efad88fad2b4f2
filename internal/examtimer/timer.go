// Package examtimer derives the lock state of a time-boxed exam from
// server-recorded timestamps. It holds no state and reads no clock; callers
// pass the authoritative server time in.
package examtimer

import "time"

// Phase is the tag of a State.
type Phase string

const (
	PhaseLocked             Phase = "locked"
	PhaseWaitingForSchedule Phase = "waiting_for_schedule"
	PhaseReadyToStart       Phase = "ready_to_start"
	PhaseInProgress         Phase = "in_progress"
)

// LockReason says why a Locked exam is locked.
type LockReason string

const (
	LockManual  LockReason = "manual"
	LockExpired LockReason = "expired"
)

// Input is the subset of an exam audit the timer reads.
type Input struct {
	StartTime        *time.Time
	TimeLimitMinutes int
	ScheduledStart   *time.Time
	ManuallyLocked   bool
}

// Deadline is StartTime + TimeLimitMinutes, or nil before the exam starts.
func (in Input) Deadline() *time.Time {
	if in.StartTime == nil {
		return nil
	}
	d := in.StartTime.Add(time.Duration(in.TimeLimitMinutes) * time.Minute)
	return &d
}

// State is the derived timer state. Only the fields relevant to Phase are set.
type State struct {
	Phase Phase `json:"phase"`

	// Locked
	Reason LockReason `json:"reason,omitempty"`

	// WaitingForSchedule
	StartsIn time.Duration `json:"starts_in,omitempty"`

	// InProgress
	Remaining time.Duration `json:"remaining,omitempty"`
	Deadline  *time.Time    `json:"deadline,omitempty"`
}

func (s State) Locked() bool   { return s.Phase == PhaseLocked }
func (s State) CanStart() bool { return s.Phase == PhaseReadyToStart }

// RemainingSeconds is the countdown shown to the participant; 0 outside InProgress.
func (s State) RemainingSeconds() int64 {
	if s.Phase != PhaseInProgress {
		return 0
	}
	return int64(s.Remaining / time.Second)
}

// Derive evaluates in precedence order: Locked, WaitingForSchedule,
// ReadyToStart, InProgress.
func Derive(in Input, now time.Time) State {
	if in.ManuallyLocked {
		return State{Phase: PhaseLocked, Reason: LockManual}
	}
	deadline := in.Deadline()
	if deadline != nil && !now.Before(*deadline) {
		return State{Phase: PhaseLocked, Reason: LockExpired}
	}
	if in.ScheduledStart != nil && now.Before(*in.ScheduledStart) {
		return State{Phase: PhaseWaitingForSchedule, StartsIn: in.ScheduledStart.Sub(now)}
	}
	if in.StartTime == nil {
		return State{Phase: PhaseReadyToStart}
	}
	return State{Phase: PhaseInProgress, Remaining: deadline.Sub(now), Deadline: deadline}
}
