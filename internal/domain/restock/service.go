package restock

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/clock"
	appctx "vendstock/internal/core/context"
	"vendstock/internal/core/id"
	"vendstock/internal/core/numerator"
	"vendstock/internal/core/tx"
	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/machine"
	"vendstock/pkg/logger"
)

var tracer = otel.Tracer("vendstock/restock")

// DefaultSessionTTL is how long an untouched session survives ExpireIdle.
const DefaultSessionTTL = 4 * time.Hour

// VisitNumberPrefix prefixes journaled visit numbers (RV-2026-00001).
const VisitNumberPrefix = "RV"

// Session is one open restocking visit.
type Session struct {
	ID        id.ID
	MachineID id.ID
	StartedAt time.Time

	mu       sync.Mutex
	lastUsed time.Time
	engine   *Engine
	closed   bool
}

// SessionView is a consistent copy of a session's state.
type SessionView struct {
	ID        id.ID          `json:"id"`
	MachineID id.ID          `json:"machineId"`
	State     State          `json:"state"`
	StartedAt time.Time      `json:"startedAt"`
	Steps     []Step         `json:"-"`
	Mandatory []string       `json:"mandatory"`
	Working   *layout.Layout `json:"working"`
}

// Option configures a Service.
type Option func(*Service)

func WithJournal(j Journal) Option               { return func(s *Service) { s.journal = j } }
func WithObserver(o Observer) Option             { return func(s *Service) { s.observer = o } }
func WithClock(c clock.Clock) Option             { return func(s *Service) { s.clock = c } }
func WithNumerator(g numerator.Generator) Option { return func(s *Service) { s.numbers = g } }
func WithSessionTTL(ttl time.Duration) Option    { return func(s *Service) { s.ttl = ttl } }
func WithTransactions(m tx.Manager) Option       { return func(s *Service) { s.txManager = m } }

// Service manages restocking sessions: at most one open engine per machine.
//
// Thread-safety: all methods are safe for concurrent use. Calls on one session are serialized.
type Service struct {
	machines  machine.Repository
	txManager tx.Manager
	journal   Journal
	numbers   numerator.Generator
	observer  Observer
	clock     clock.Clock
	ttl       time.Duration

	mu        sync.Mutex
	sessions  map[id.ID]*Session
	byMachine map[id.ID]id.ID
}

// NewService creates a session service over the machine repository.
func NewService(machines machine.Repository, opts ...Option) *Service {
	s := &Service{
		machines:  machines,
		txManager: tx.Passthrough{},
		numbers:   numerator.NewMemory(),
		observer:  NopObserver{},
		clock:     clock.System(),
		ttl:       DefaultSessionTTL,
		sessions:  make(map[id.ID]*Session),
		byMachine: make(map[id.ID]id.ID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restocking reports whether the machine has an open or opening session.
// It implements machine.VisitLock.
func (s *Service) Restocking(machineID id.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.byMachine[machineID]
	return busy
}

// Preview returns the worklist a visit would start with, without opening a session.
func (s *Service) Preview(ctx context.Context, machineID id.ID) ([]Step, error) {
	m, err := s.loadMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	plan, err := Plan(m.Live(), m.Pending(), m.StockingInterval(), clock.Today(s.clock))
	if err != nil {
		return nil, err
	}
	steps := make([]Step, len(plan))
	for i, ins := range plan {
		steps[i] = Step{Handle: Handle(i + 1), Instruction: ins}
	}
	return steps, nil
}

// Begin opens a session for the machine. A second session for the same machine is a conflict.
func (s *Service) Begin(ctx context.Context, machineID id.ID) (SessionView, error) {
	s.mu.Lock()
	if sid, busy := s.byMachine[machineID]; busy {
		s.mu.Unlock()
		return SessionView{}, apperror.NewConflict("machine already has an open restocking session").
			WithDetail("machineId", machineID.String()).
			WithDetail("sessionId", sid.String())
	}
	// Reserve the machine while loading.
	s.byMachine[machineID] = id.Nil()
	s.mu.Unlock()

	sess, err := s.open(ctx, machineID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		delete(s.byMachine, machineID)
		return SessionView{}, err
	}
	s.sessions[sess.ID] = sess
	s.byMachine[machineID] = sess.ID

	s.observer.SessionOpened()
	logger.Info(ctx, "restock session opened",
		"session_id", sess.ID, "machine_id", machineID, "instructions", len(sess.engine.steps))
	return sess.view(), nil
}

func (s *Service) open(ctx context.Context, machineID id.ID) (*Session, error) {
	m, err := s.loadMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	sess := &Session{ID: id.New(), MachineID: machineID, StartedAt: now, lastUsed: now}
	engine, err := NewEngine(m, SaverFunc(func(ctx context.Context, staged *machine.Machine) error {
		return s.persist(ctx, sess, staged)
	}), s.clock)
	if err != nil {
		return nil, err
	}
	sess.engine = engine
	return sess, nil
}

// persist saves the staged machine and journals the visit in one transaction.
func (s *Service) persist(ctx context.Context, sess *Session, staged *machine.Machine) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.machines.Save(ctx, staged); err != nil {
			return err
		}
		if s.journal == nil {
			return nil
		}

		now := s.clock.Now()
		number, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig(VisitNumberPrefix), nil, now)
		if err != nil {
			return err
		}
		return s.journal.RecordVisit(ctx, &Visit{
			Number:      number,
			MachineID:   staged.ID,
			SessionID:   sess.ID,
			Location:    staged.Location(),
			Operator:    appctx.GetOperatorName(ctx),
			StartedAt:   sess.StartedAt,
			CommittedAt: now,
			Resolved:    visitSteps(sess.engine.Resolved()),
			Skipped:     visitSteps(sess.engine.Steps()),
			Capped:      sess.engine.Capped(),
			Live:        staged.Live(),
		})
	})
}

// Get returns the session's current state.
func (s *Service) Get(sessionID id.ID) (SessionView, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// Resolve marks the instruction behind handle as done.
func (s *Service) Resolve(ctx context.Context, sessionID id.ID, h Handle) (SessionView, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	defer sess.mu.Unlock()

	ins, known := sess.engine.pending[h]
	if err := sess.engine.Remove(h); err != nil {
		return SessionView{}, err
	}
	sess.lastUsed = s.clock.Now()
	if known {
		s.observer.InstructionResolved(ins.Kind())
		logger.Debug(ctx, "instruction resolved",
			"session_id", sessionID, "handle", h, "description", ins.Description())
	}
	return sess.view(), nil
}

// Complete attempts the commit. A refused commit returns the Result with the
// remaining mandatory descriptions alongside a MANDATORY_INSTRUCTIONS_REMAIN error.
func (s *Service) Complete(ctx context.Context, sessionID id.ID) (Result, error) {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return Result{}, err
	}
	defer sess.mu.Unlock()

	ctx, span := tracer.Start(ctx, "restock.complete",
		trace.WithAttributes(
			attribute.String("session.id", sessionID.String()),
			attribute.String("machine.id", sess.MachineID.String()),
		))
	defer span.End()

	sess.lastUsed = s.clock.Now()
	res, err := sess.engine.CompleteStocking(ctx)
	switch {
	case err == nil:
		s.drop(sess)
		s.observer.VisitCommitted(s.clock.Now().Sub(sess.StartedAt))
		logger.Info(ctx, "restock visit committed",
			"session_id", sessionID, "machine_id", sess.MachineID,
			"next_visit", sess.engine.Machine().NextVisit(), "capped", len(res.Capped))
	case apperror.HasCode(err, apperror.CodeMandatoryRemaining):
		s.observer.CommitRefused(len(res.Remaining))
		span.SetAttributes(attribute.Int("restock.remaining", len(res.Remaining)))
	default:
		s.observer.CommitFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// Abandon discards the session; the machine's live layout is untouched.
func (s *Service) Abandon(ctx context.Context, sessionID id.ID) error {
	sess, err := s.acquire(sessionID)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	sess.engine.Close()
	s.drop(sess)
	logger.Info(ctx, "restock session abandoned", "session_id", sessionID, "machine_id", sess.MachineID)
	return nil
}

// ExpireIdle abandons sessions untouched for longer than the TTL and returns how many.
func (s *Service) ExpireIdle(now time.Time) int {
	expired := 0
	for _, sess := range s.snapshot() {
		sess.mu.Lock()
		if !sess.closed && now.Sub(sess.lastUsed) > s.ttl {
			sess.engine.Close()
			s.drop(sess)
			expired++
		}
		sess.mu.Unlock()
	}
	return expired
}

// Sessions lists open sessions ordered by start time.
func (s *Service) Sessions() []SessionView {
	var out []SessionView
	for _, sess := range s.snapshot() {
		sess.mu.Lock()
		if !sess.closed {
			out = append(out, sess.view())
		}
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (s *Service) snapshot() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// acquire locks an open session. The caller must unlock sess.mu.
func (s *Service) acquire(sessionID id.ID) (*Session, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return nil, apperror.NewNotFound("session", sessionID.String())
	}
	return sess, nil
}

func (s *Service) session(sessionID id.ID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, apperror.NewNotFound("session", sessionID.String())
	}
	return sess, nil
}

// drop unregisters sess. The caller holds sess.mu.
func (s *Service) drop(sess *Session) {
	sess.closed = true
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.ID)
	if s.byMachine[sess.MachineID] == sess.ID {
		delete(s.byMachine, sess.MachineID)
	}
}

func (s *Service) loadMachine(ctx context.Context, machineID id.ID) (*machine.Machine, error) {
	m, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("machine", machineID.String())
		}
		return nil, err
	}
	return m, nil
}

func (sess *Session) view() SessionView {
	return SessionView{
		ID:        sess.ID,
		MachineID: sess.MachineID,
		State:     sess.engine.State(),
		StartedAt: sess.StartedAt,
		Steps:     sess.engine.Steps(),
		Mandatory: sess.engine.Mandatory(),
		Working:   sess.engine.WorkingSnapshot(),
	}
}
