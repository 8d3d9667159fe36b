// Package jobmgr runs named background jobs with cancellation and in-memory
// tracking. A name can be held by one running job at a time; jobs are removed
// automatically when they return.
//
//	jm := jobmgr.NewManager(nil)
//	_ = jm.StartAsync("playback:123", func(ctx context.Context) error {
//	    <-ctx.Done()
//	    return nil
//	})
//	_ = jm.Stop("playback:123") // cancels and waits
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotRunning is returned by Stop for unknown job names.
var ErrNotRunning = errors.New("job not running")

// Job is a running unit of work.
type Job struct {
	Name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the job's runner has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// StatusReporter receives lifecycle events: "running:<name>",
// "done:<name>" and "error:<name>:<message>".
type StatusReporter func(string)

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	Reporter StatusReporter
}

// NewManager creates a Manager. reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		Reporter: reporter,
	}
}

// StartAsync runs runner in its own goroutine. It fails if a job with the
// same name is still running.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) (*Job, error) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{Name: name, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("job %q is already running", name)
	}
	m.jobs[name] = job
	m.mu.Unlock()

	go func() {
		defer close(job.done)
		defer cancel()

		m.report("running:" + name)
		if err := runner(ctx); err != nil {
			m.report("error:" + name + ":" + err.Error())
		} else {
			m.report("done:" + name)
		}

		m.mu.Lock()
		if m.jobs[name] == job {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()

	return job, nil
}

// Stop cancels the named job and waits for its runner to return.
// It must not be called from inside the job it stops.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	job, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}

	job.cancel()
	<-job.done
	return nil
}

// Running reports whether a job with the given name is active.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the sorted names of active jobs.
func (m *Manager) List() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

// StopAll cancels every job and waits for all of them.
func (m *Manager) StopAll() {
	for _, name := range m.List() {
		_ = m.Stop(name)
	}
}

func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
