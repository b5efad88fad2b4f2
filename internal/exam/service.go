// Package exam runs time-boxed exam audits: distribution of randomized item
// subsets to participants and the server-side countdown operations.
package exam

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-audit/internal/audit"
	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/examtimer"
	syncx "github.com/mind-engage/mindengage-audit/internal/sync"
)

// DefaultSampleSize is how many master items each participant receives.
const DefaultSampleSize = 20

type Service struct {
	store      audit.Store
	now        func() time.Time
	events     audit.EventSink
	log        *slog.Logger
	newID      func() string
	sampleSize int

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEvents(sink audit.EventSink) Option {
	return func(s *Service) { s.events = sink }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithRand fixes the sampling source, e.g. rand.New(rand.NewPCG(1, 2)) in tests.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

// WithSampleSize changes the default per-participant sample size.
func WithSampleSize(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.sampleSize = k
		}
	}
}

func NewService(store audit.Store, opts ...Option) *Service {
	now := time.Now()
	s := &Service{
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
		events:     nopSink{},
		log:        slog.Default(),
		newID:      uuid.NewString,
		sampleSize: DefaultSampleSize,
		rng:        rand.New(rand.NewPCG(uint64(now.UnixNano()), uint64(now.Unix()))),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type nopSink struct{}

func (nopSink) Append(context.Context, syncx.Event) error { return nil }

func (s *Service) record(ctx context.Context, typ, key, actor string, data any) {
	ev, err := syncx.NewEvent(typ, key, actor, data)
	if err == nil {
		err = s.events.Append(ctx, ev)
	}
	if err != nil {
		s.log.Warn("event append failed", "type", typ, "key", key, "err", err)
	}
}

func (s *Service) examAudit(ctx context.Context, id string) (audit.Audit, error) {
	a, err := s.store.GetAudit(ctx, id)
	if err != nil {
		return audit.Audit{}, err
	}
	if !a.Type.IsExam() {
		return audit.Audit{}, errs.Validation(errs.CodeNotExam, "audit %s is %s, not an exam", a.ID, a.Type)
	}
	return a, nil
}

func requireAdmin(actor audit.Actor) error {
	if actor.Role != audit.RoleAdmin {
		return errs.Authorization(errs.CodeWrongRole, "user %q is not an admin", actor.UserID)
	}
	return nil
}

func statusFor(st examtimer.State) audit.AuditStatus {
	if st.Locked() {
		return audit.AuditLocked
	}
	return audit.AuditActive
}

// TimerView is the timer state of an exam as shown to its participant.
type TimerView struct {
	AuditID          string          `json:"audit_id"`
	State            examtimer.State `json:"state"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	ServerTime       time.Time       `json:"server_time"`
}

func (s *Service) view(a audit.Audit, now time.Time) TimerView {
	st := examtimer.Derive(a.TimerInput(), now)
	return TimerView{AuditID: a.ID, State: st, RemainingSeconds: st.RemainingSeconds(), ServerTime: now}
}

// Timer derives the current timer state from the stored timestamps.
func (s *Service) Timer(ctx context.Context, auditID string) (TimerView, error) {
	a, err := s.examAudit(ctx, auditID)
	if err != nil {
		return TimerView{}, err
	}
	return s.view(a, s.now()), nil
}

// Start records the server time as the exam start. Only the participant may
// start; a second call, or one losing a concurrent race, changes nothing.
func (s *Service) Start(ctx context.Context, actor audit.Actor, auditID string) (TimerView, error) {
	a, err := s.examAudit(ctx, auditID)
	if err != nil {
		return TimerView{}, err
	}
	if actor.UserID == "" || actor.UserID != a.ParticipantUserID {
		return TimerView{}, errs.Authorization(errs.CodeNotParticipant, "user %q is not the participant of exam %s", actor.UserID, a.ID)
	}
	now := s.now()
	st := examtimer.Derive(a.TimerInput(), now)
	switch st.Phase {
	case examtimer.PhaseLocked:
		return TimerView{}, errs.Authorization(errs.CodeExamLocked, "exam %s is locked (%s)", a.ID, st.Reason)
	case examtimer.PhaseWaitingForSchedule:
		return TimerView{}, errs.Authorization(errs.CodeNotScheduled, "exam %s opens in %s", a.ID, st.StartsIn.Round(time.Second))
	case examtimer.PhaseInProgress:
		return s.view(a, now), nil
	}

	started, err := s.store.StartExam(ctx, a.ID, now)
	if err != nil {
		return TimerView{}, err
	}
	if a, err = s.store.GetAudit(ctx, a.ID); err != nil {
		return TimerView{}, err
	}
	if started {
		s.log.Info("exam started", "audit", a.ID, "user", actor.UserID, "limit_minutes", a.TimeLimitMinutes)
		s.record(ctx, syncx.TypeExamStarted, a.ID, actor.UserID, map[string]any{"start": now})
	}
	return s.view(a, now), nil
}

// SubmitEarly locks a running exam before its deadline. Locking a locked
// exam again is a no-op.
func (s *Service) SubmitEarly(ctx context.Context, actor audit.Actor, auditID string) (TimerView, error) {
	a, err := s.examAudit(ctx, auditID)
	if err != nil {
		return TimerView{}, err
	}
	if actor.UserID == "" || actor.UserID != a.ParticipantUserID {
		return TimerView{}, errs.Authorization(errs.CodeNotParticipant, "user %q is not the participant of exam %s", actor.UserID, a.ID)
	}
	now := s.now()
	switch st := examtimer.Derive(a.TimerInput(), now); st.Phase {
	case examtimer.PhaseLocked:
		return s.view(a, now), nil
	case examtimer.PhaseInProgress:
	default:
		return TimerView{}, errs.Validation(errs.CodeExamNotStarted, "exam %s has not been started", a.ID)
	}
	locked, status := true, audit.AuditLocked
	a, err = s.store.UpdateAudit(ctx, a.ID, audit.AuditPatch{IsManuallyLocked: &locked, Status: &status})
	if err != nil {
		return TimerView{}, err
	}
	s.log.Info("exam submitted early", "audit", a.ID, "user", actor.UserID)
	s.record(ctx, syncx.TypeExamLockChanged, a.ID, actor.UserID, map[string]any{"locked": true, "early": true})
	return s.view(a, now), nil
}

// ToggleManualLock sets or clears the manual lock. Clearing it does not
// reopen an exam whose time has run out; ExtendTimeLimit does.
func (s *Service) ToggleManualLock(ctx context.Context, actor audit.Actor, auditID string, locked bool) (TimerView, error) {
	if err := requireAdmin(actor); err != nil {
		return TimerView{}, err
	}
	a, err := s.examAudit(ctx, auditID)
	if err != nil {
		return TimerView{}, err
	}
	now := s.now()
	in := a.TimerInput()
	in.ManuallyLocked = locked
	status := statusFor(examtimer.Derive(in, now))
	a, err = s.store.UpdateAudit(ctx, a.ID, audit.AuditPatch{IsManuallyLocked: &locked, Status: &status})
	if err != nil {
		return TimerView{}, err
	}
	s.log.Info("exam lock changed", "audit", a.ID, "locked", locked, "user", actor.UserID)
	s.record(ctx, syncx.TypeExamLockChanged, a.ID, actor.UserID, map[string]any{"locked": locked})
	return s.view(a, now), nil
}

// ExtendTimeLimit adds minutes to the exam's time limit.
func (s *Service) ExtendTimeLimit(ctx context.Context, actor audit.Actor, auditID string, minutes int) (TimerView, error) {
	if err := requireAdmin(actor); err != nil {
		return TimerView{}, err
	}
	if minutes <= 0 {
		return TimerView{}, errs.Validation(errs.CodeInvalidTimeLimit, "extension must be positive, got %d minutes", minutes)
	}
	a, err := s.examAudit(ctx, auditID)
	if err != nil {
		return TimerView{}, err
	}
	now := s.now()
	limit := a.TimeLimitMinutes + minutes
	in := a.TimerInput()
	in.TimeLimitMinutes = limit
	status := statusFor(examtimer.Derive(in, now))
	a, err = s.store.UpdateAudit(ctx, a.ID, audit.AuditPatch{TimeLimitMinutes: &limit, Status: &status})
	if err != nil {
		return TimerView{}, err
	}
	s.log.Info("exam extended", "audit", a.ID, "minutes", minutes, "limit", limit, "user", actor.UserID)
	s.record(ctx, syncx.TypeExamExtended, a.ID, actor.UserID, map[string]any{"minutes": minutes, "limit": limit})
	return s.view(a, now), nil
}

// ReleaseScores shows or hides teacher scores to the participant.
func (s *Service) ReleaseScores(ctx context.Context, actor audit.Actor, auditID string, released bool) (audit.Audit, error) {
	if err := requireAdmin(actor); err != nil {
		return audit.Audit{}, err
	}
	if _, err := s.examAudit(ctx, auditID); err != nil {
		return audit.Audit{}, err
	}
	a, err := s.store.UpdateAudit(ctx, auditID, audit.AuditPatch{ScoreReleased: &released})
	if err != nil {
		return audit.Audit{}, err
	}
	s.record(ctx, syncx.TypeScoresReleased, a.ID, actor.UserID, map[string]any{"released": released})
	return a, nil
}
