// Package scheduler runs the daemon's periodic background jobs.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/profilecrm/profilecrm/internal/logging"
)

// TaskHandler is the function executed for a task
type TaskHandler func(ctx context.Context) error

// Task is a job that runs on a fixed interval
type Task struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	Timeout    time.Duration `json:"timeout"`
	RunAtStart bool          `json:"runAtStart"` // Run once immediately on Start
	Handler    TaskHandler   `json:"-"`

	LastRun    *time.Time `json:"lastRun,omitempty"`
	NextRun    *time.Time `json:"nextRun,omitempty"`
	RunCount   int64      `json:"runCount"`
	ErrorCount int64      `json:"errorCount"`
	LastError  string     `json:"lastError,omitempty"`
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	tasks   map[string]*Task
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup

	log *logging.Logger
	mu  sync.RWMutex
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{
		tasks: make(map[string]*Task),
		log:   logging.WithField("component", "scheduler"),
	}
}

// Register adds a task. Tasks must be registered before Start.
func (s *Scheduler) Register(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if task.Handler == nil {
		return fmt.Errorf("task handler is required")
	}
	if task.Interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", task.ID)
	}
	if s.started {
		return fmt.Errorf("task %s: scheduler already started", task.ID)
	}
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already registered", task.ID)
	}

	if task.Timeout == 0 {
		task.Timeout = time.Minute
	}
	s.tasks[task.ID] = task
	return nil
}

// Start launches one loop per task. The loops stop when ctx is cancelled
// or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTaskLoop(ctx, task)
	}

	s.log.WithField("tasks", len(s.tasks)).Info("scheduler started")
	return nil
}

// Stop cancels every loop and waits for running handlers to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) runTaskLoop(ctx context.Context, task *Task) {
	defer s.wg.Done()

	if task.RunAtStart {
		s.executeTask(ctx, task)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	s.setNextRun(task)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.executeTask(ctx, task)
			s.setNextRun(task)
		}
	}
}

func (s *Scheduler) setNextRun(task *Task) {
	next := time.Now().Add(task.Interval)
	s.mu.Lock()
	task.NextRun = &next
	s.mu.Unlock()
}

// executeTask runs a handler once under the task timeout
func (s *Scheduler) executeTask(ctx context.Context, task *Task) {
	execCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	defer cancel()

	now := time.Now()
	s.mu.Lock()
	task.LastRun = &now
	task.RunCount++
	s.mu.Unlock()

	err := task.Handler(execCtx)

	s.mu.Lock()
	if err != nil {
		task.ErrorCount++
		task.LastError = err.Error()
	} else {
		task.LastError = ""
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		s.log.WithField("task", task.ID).WithError(err).Warn("task failed")
	}
}

// RunNow executes a task synchronously, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, taskID string) error {
	s.mu.RLock()
	task, ok := s.tasks[taskID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("task not found: %s", taskID)
	}

	s.executeTask(ctx, task)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if task.LastError != "" {
		return fmt.Errorf("task %s: %s", taskID, task.LastError)
	}
	return nil
}

// ListTasks returns a snapshot of every task, ordered by id
func (s *Scheduler) ListTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}
