package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/memberhub/roster-sync/internal/clock"
	"github.com/memberhub/roster-sync/internal/events"
	"github.com/memberhub/roster-sync/internal/lock"
	"github.com/memberhub/roster-sync/internal/reconcile"
	"github.com/memberhub/roster-sync/internal/status"
)

// ErrRunInProgress is returned when a run is requested while another one
// holds the run guard.
var ErrRunInProgress = errors.New("reconciliation run already in progress")

// Scheduler owns the cron loop and the guarded run path.
type Scheduler struct {
	runner       reconcile.Runner
	persistence  status.Persistence
	publisher    events.Publisher
	locker       lock.Locker
	clock        clock.Clock
	logger       *slog.Logger
	cronLogger   logr.Logger
	location     *time.Location
	runOnStartup bool

	// running guards the run path; it is held for the whole run.
	running sync.Mutex

	mu         sync.Mutex
	cron       *cron.Cron
	entryID    cron.EntryID
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	inflight   sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStatusPersistence records each run.
func WithStatusPersistence(p status.Persistence) Option {
	return func(s *Scheduler) { s.persistence = p }
}

// WithPublisher publishes a run-completed event after each run.
func WithPublisher(p events.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithLocker adds a cross-process run lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithClock overrides the clock used for run timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithCronLogger sets the logr logger handed to the cron library.
func WithCronLogger(l logr.Logger) Option {
	return func(s *Scheduler) { s.cronLogger = l }
}

// WithLocation evaluates cron expressions in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithRunOnStartup triggers a run as soon as Start is called.
func WithRunOnStartup(enabled bool) Option {
	return func(s *Scheduler) { s.runOnStartup = enabled }
}

// New creates a Scheduler that executes runner.
func New(runner reconcile.Runner, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		runner:     runner,
		publisher:  events.NoopPublisher{},
		locker:     lock.Noop{},
		clock:      clock.NewSystem(),
		logger:     slog.Default(),
		cronLogger: logr.Discard(),
		location:   time.UTC,
		baseCtx:    baseCtx,
		cancelFunc: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start schedules runs on cronExpr, a standard five-field expression. It
// returns once the cron loop is running; call Stop to end it. Start must be
// called at most once.
func (s *Scheduler) Start(ctx context.Context, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(s.cronLogger),
		cron.WithChain(
			cron.Recover(s.cronLogger),
			cron.SkipIfStillRunning(s.cronLogger),
		),
	)

	runCtx, cancel := context.WithCancel(ctx)
	entryID, err := c.AddFunc(cronExpr, func() { s.scheduledRun(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.cron = c
	s.entryID = entryID
	prevCancel := s.cancelFunc
	s.baseCtx = runCtx
	s.cancelFunc = func() {
		cancel()
		prevCancel()
	}
	c.Start()

	s.logger.Info("Scheduler started",
		"cron", cronExpr,
		"timezone", s.location.String(),
		"next_run", c.Entry(entryID).Next)

	if s.runOnStartup {
		if _, err := s.triggerLocked(status.TriggerStartup); err != nil {
			s.logger.Warn("Startup run not started", "error", err)
		}
	}
	return nil
}

// Stop cancels any in-flight run and waits for it to finish. Runs started
// by Trigger before Start are waited for too.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancelFunc
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	s.inflight.Wait()
	s.logger.Info("Scheduler stopped")
}

// NextRun returns the next scheduled firing, zero before Start.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// RunNow executes a run synchronously. The returned status is nil only
// when the run could not start.
func (s *Scheduler) RunNow(ctx context.Context, trigger status.Trigger) (*status.RunStatus, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.execute(ctx, uuid.NewString(), trigger)
}

// Trigger starts a run in the background and returns its id. It fails with
// ErrRunInProgress when a run is already executing.
func (s *Scheduler) Trigger(trigger status.Trigger) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggerLocked(trigger)
}

func (s *Scheduler) triggerLocked(trigger status.Trigger) (string, error) {
	ctx := s.baseCtx
	release, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer release()
		if _, err := s.execute(ctx, runID, trigger); err != nil {
			s.logger.Error("Reconciliation run failed", "run_id", runID, "trigger", trigger, "error", err)
		}
	}()
	return runID, nil
}

func (s *Scheduler) scheduledRun(ctx context.Context) {
	if _, err := s.RunNow(ctx, status.TriggerSchedule); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Warn("Skipping scheduled run", "reason", err)
			return
		}
		s.logger.Error("Scheduled reconciliation run failed", "error", err)
	}
}

// acquire takes the in-process guard, then the cross-process lock.
func (s *Scheduler) acquire(ctx context.Context) (func(), error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}

	lease, err := s.locker.TryAcquire(ctx)
	if err != nil {
		s.running.Unlock()
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("%w: %w", ErrRunInProgress, err)
		}
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}

	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("Failed to release run lock", "error", err)
		}
		s.running.Unlock()
	}, nil
}

// execute runs the reconciliation with the guard held.
func (s *Scheduler) execute(ctx context.Context, runID string, trigger status.Trigger) (*status.RunStatus, error) {
	run := status.Running(runID, trigger, s.clock.Now())
	s.saveStatus(ctx, run)

	s.logger.Info("Starting reconciliation run", "run_id", runID, "trigger", trigger)
	result, runErr := s.safeRun(ctx, runID)

	run.Finish(result, runErr, s.clock.Now())

	// Recording must survive cancellation of the run itself.
	recordCtx := context.WithoutCancel(ctx)
	s.saveStatus(recordCtx, run)
	if err := s.publisher.PublishRunCompleted(recordCtx, run); err != nil {
		s.logger.Error("Failed to publish run event", "run_id", runID, "error", err)
	}

	return run, runErr
}

func (s *Scheduler) safeRun(ctx context.Context, runID string) (result *reconcile.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Reconciliation run panicked", "run_id", runID, "panic", r)
			err = fmt.Errorf("reconciliation run panicked: %v", r)
		}
	}()
	return s.runner.Run(ctx, runID)
}

func (s *Scheduler) saveStatus(ctx context.Context, run *status.RunStatus) {
	if s.persistence == nil {
		return
	}
	if err := s.persistence.SaveStatus(ctx, run); err != nil {
		s.logger.Error("Failed to save run status",
			"run_id", run.RunID,
			"phase", run.Phase,
			"error", err)
	}
}
