// Package scheduler runs the periodic maintenance tasks of the process, one goroutine per
// task.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler ticks every task on its own interval until Stop is called or the context passed
// to Start is cancelled. A run that fails or panics is logged and the task keeps ticking.
type Scheduler struct {
	tasks  []Task
	logger zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

type Option func(*Scheduler)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func New(tasks []Task, options ...Option) *Scheduler {
	s := &Scheduler{
		tasks:  tasks,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start launches the task loops. Tasks with a non-positive interval are skipped. Calling
// Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, task := range s.tasks {
		if task.Interval <= 0 || task.Run == nil {
			s.logger.Warn().Str("task", task.Name).Msg("task disabled")
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
}

// Stop cancels every loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, task)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("task", task.Name).Str("panic", fmt.Sprint(r)).Msg("task panicked")
		}
	}()

	if err := task.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error().Err(err).Str("task", task.Name).Msg("task failed")
		return
	}
	s.logger.Debug().Str("task", task.Name).Dur("took", time.Since(started)).Msg("task ran")
}
