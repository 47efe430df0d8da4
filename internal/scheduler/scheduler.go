package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// JobFunc is one iteration of a periodic job. ctx is cancelled on Stop.
type JobFunc func(ctx context.Context)

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
}

// Scheduler runs named periodic jobs. A panic inside one iteration is logged
// and the job runs again on its next tick; iterations of the same job never
// overlap.
type Scheduler struct {
	mu        sync.Mutex
	scheduler *gocron.Scheduler
	jobs      []job
	active    *runState
	logger    *zap.Logger
}

// runState tracks the iterations started during one Start/Stop cycle.
type runState struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// enter registers an iteration; it fails once the cycle is stopping.
func (r *runState) enter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.wg.Add(1)
	return true
}

func (r *runState) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger.Named("scheduler")}
}

// Add registers a job. Jobs added after Start take effect on the next Start.
func (s *Scheduler) Add(name string, interval time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, interval: interval, fn: fn})
}

// Start schedules every registered job and starts the underlying scheduler.
// Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		return nil
	}

	jobCtx, cancel := context.WithCancel(ctx)
	state := &runState{ctx: jobCtx, cancel: cancel}
	sched := gocron.NewScheduler(time.UTC)

	for _, j := range s.jobs {
		if j.interval <= 0 {
			cancel()
			return fmt.Errorf("job %s: interval must be positive, got %s", j.name, j.interval)
		}

		j := j
		_, err := sched.Every(j.interval).
			Tag(j.name).
			SingletonMode().
			WaitForSchedule().
			Do(func() { s.run(state, j) })
		if err != nil {
			cancel()
			return fmt.Errorf("schedule job %s: %w", j.name, err)
		}
	}

	sched.StartAsync()
	s.scheduler = sched
	s.active = state

	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

func (s *Scheduler) run(state *runState, j job) {
	if !state.enter() {
		return
	}
	defer state.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job", j.name), zap.Any("panic", r))
		}
	}()

	j.fn(state.ctx)
}

// Stop cancels in-flight iterations and waits for them to return. Stopping
// a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	sched, state := s.scheduler, s.active
	s.scheduler, s.active = nil, nil
	s.mu.Unlock()

	if sched == nil {
		return
	}

	state.stop()
	sched.Stop()

	s.logger.Info("scheduler stopped")
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler != nil
}
