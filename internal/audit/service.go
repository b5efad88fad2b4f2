package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-audit/internal/errs"
	"github.com/mind-engage/mindengage-audit/internal/examtimer"
	"github.com/mind-engage/mindengage-audit/internal/scoring"
	syncx "github.com/mind-engage/mindengage-audit/internal/sync"
)

// EventSink receives an event for every committed mutation.
type EventSink interface {
	Append(ctx context.Context, e syncx.Event) error
}

type discardSink struct{}

func (discardSink) Append(context.Context, syncx.Event) error { return nil }

// Service runs the item workflow and the audit lifecycle on top of a Store.
type Service struct {
	store    Store
	now      func() time.Time
	events   EventSink
	log      *slog.Logger
	template scoring.Template
	engine   scoring.Engine
	newID    func() string
}

type Option func(*Service)

// WithClock replaces the server clock. Tests use it to pin time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithTemplate sets the weight template new audits are created from.
func WithTemplate(t scoring.Template) Option {
	return func(s *Service) { s.template = t }
}

// WithIDs replaces uuid generation.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		events:   discardSink{},
		log:      slog.Default(),
		template: scoring.DefaultTemplate(),
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now is the authoritative server time.
func (s *Service) Now() time.Time { return s.now() }

// record appends an event. The mutation has already committed, so a failing
// log only gets a warning.
func (s *Service) record(ctx context.Context, typ, key, actor string, data any) {
	ev, err := syncx.NewEvent(typ, key, actor, data)
	if err == nil {
		err = s.events.Append(ctx, ev)
	}
	if err != nil {
		s.log.Warn("event append failed", "type", typ, "key", key, "err", err)
	}
}

// roleIn resolves the actor's role on a. Group memberships are only looked
// up for group audits.
func (s *Service) roleIn(ctx context.Context, a Audit, actor Actor) (Role, []Membership, error) {
	var groups []Membership
	if a.AuditorGroupID != "" || a.AuditeeGroupID != "" {
		var err error
		groups, err = s.store.GroupMemberships(ctx, actor.UserID)
		if err != nil {
			return "", nil, err
		}
	}
	return ResolveRole(a, actor.UserID, actor.Role, groups), groups, nil
}

// checkExamOpen re-derives the timer state at call time; item writes on an
// exam are only allowed while it is in progress.
func (s *Service) checkExamOpen(a Audit) error {
	if !a.Type.IsExam() {
		return nil
	}
	st := examtimer.Derive(a.TimerInput(), s.now())
	switch st.Phase {
	case examtimer.PhaseInProgress:
		return nil
	case examtimer.PhaseLocked:
		return errs.Authorization(errs.CodeExamLocked, "exam %s is locked (%s)", a.ID, st.Reason)
	default:
		return errs.Authorization(errs.CodeExamNotStarted, "exam %s has not been started", a.ID)
	}
}

// authorizeItem loads the item and its audit and checks that actor may
// write it as want right now.
func (s *Service) authorizeItem(ctx context.Context, actor Actor, itemID string, want Role) (Audit, EvaluationItem, error) {
	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return Audit{}, EvaluationItem{}, err
	}
	a, err := s.store.GetAudit(ctx, it.AuditID)
	if err != nil {
		return Audit{}, EvaluationItem{}, err
	}
	role, _, err := s.roleIn(ctx, a, actor)
	if err != nil {
		return Audit{}, EvaluationItem{}, err
	}
	if role != want {
		return Audit{}, EvaluationItem{}, errs.Authorization(errs.CodeWrongRole,
			"user %q acts as %s on audit %s, %s required", actor.UserID, role, a.ID, want)
	}
	if err := checkAssignment(a, it, actor.UserID, role); err != nil {
		return Audit{}, EvaluationItem{}, err
	}
	if err := s.checkExamOpen(a); err != nil {
		return Audit{}, EvaluationItem{}, err
	}
	return a, it, nil
}

func requireAdmin(actor Actor) error {
	if actor.Role != RoleAdmin {
		return errs.Authorization(errs.CodeWrongRole, "user %q is not an admin", actor.UserID)
	}
	return nil
}
