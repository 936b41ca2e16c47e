// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"io"
	"sync"

	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/executor"
)

// MockExecutor is a test double for executor.Executor driven by the test.
// Fields are ordered to minimize memory padding.
type MockExecutor struct {
	Opts       executor.Options
	booted     chan struct{}
	done       chan struct{}
	aborted    chan struct{}
	Config     domain.TaskConfig
	AbortCalls int
	exitCode   int
	mu         sync.Mutex
	bootOnce   sync.Once
	exitOnce   sync.Once
	abortOnce  sync.Once
	// HoldAbort keeps Abort pending until ReleaseAbort is called.
	HoldAbort bool
	running   bool
}

// Ensure MockExecutor implements executor.Executor.
var _ executor.Executor = (*MockExecutor)(nil)

// NewMockExecutor creates a running MockExecutor for cfg.
func NewMockExecutor(cfg domain.TaskConfig, opts executor.Options) *MockExecutor {
	return &MockExecutor{
		Config:  cfg,
		Opts:    opts,
		booted:  make(chan struct{}),
		done:    make(chan struct{}),
		aborted: make(chan struct{}),
		running: true,
	}
}

// Boot reports the process as spawned.
func (m *MockExecutor) Boot() {
	m.bootOnce.Do(func() { close(m.booted) })
}

// Exit ends the run with code.
func (m *MockExecutor) Exit(code int) {
	m.exitOnce.Do(func() {
		m.mu.Lock()
		m.exitCode = code
		m.running = false
		m.mu.Unlock()
		close(m.done)
	})
}

// Write sends output as if the process printed s.
func (m *MockExecutor) Write(s string) {
	if m.Opts.Output != nil {
		m.Opts.Output([]byte(s))
	}
}

// ReleaseAbort completes a held abort.
func (m *MockExecutor) ReleaseAbort() {
	m.Exit(1)
	m.abortOnce.Do(func() { close(m.aborted) })
}

// Accept keeps the run when the shell command is unchanged.
func (m *MockExecutor) Accept(cfg domain.TaskConfig) bool {
	return cfg.Shell != nil && m.Config.Shell != nil && cfg.Shell.Shell == m.Config.Shell.Shell
}

// Booted implements executor.Executor.
func (m *MockExecutor) Booted() <-chan struct{} { return m.booted }

// Done implements executor.Executor.
func (m *MockExecutor) Done() <-chan struct{} { return m.done }

// ExitCode implements executor.Executor.
func (m *MockExecutor) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode
}

// Running implements executor.Executor.
func (m *MockExecutor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Abort records the call and, unless HoldAbort is set, ends the run at once.
func (m *MockExecutor) Abort() <-chan struct{} {
	m.mu.Lock()
	m.AbortCalls++
	hold := m.HoldAbort
	m.mu.Unlock()

	if !hold {
		m.ReleaseAbort()
	}
	return m.aborted
}

// Aborts returns how many times Abort was called.
func (m *MockExecutor) Aborts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AbortCalls
}

// MockExecutorFactory is a test double for executor.Factory recording every
// executor it creates.
// Fields are ordered to minimize memory padding.
type MockExecutorFactory struct {
	Err       error
	created   []*MockExecutor
	mu        sync.Mutex
	AutoBoot  bool // Boot every executor as soon as it is created
	HoldAbort bool // Copied into every created executor
}

// New implements executor.Factory.
func (f *MockExecutorFactory) New(cfg domain.TaskConfig, opts executor.Options) (executor.Executor, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	m := NewMockExecutor(cfg, opts)
	m.HoldAbort = f.HoldAbort
	if f.AutoBoot {
		m.Boot()
	}

	f.mu.Lock()
	f.created = append(f.created, m)
	f.mu.Unlock()
	return m, nil
}

// Count returns the number of executors created.
func (f *MockExecutorFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// Get returns the i-th created executor, or nil.
func (f *MockExecutorFactory) Get(i int) *MockExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.created) {
		return nil
	}
	return f.created[i]
}

// Last returns the most recently created executor, or nil.
func (f *MockExecutorFactory) Last() *MockExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// For returns the most recent executor created for the shell command, or nil.
func (f *MockExecutorFactory) For(shell string) *MockExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.created) - 1; i >= 0; i-- {
		if m := f.created[i]; m.Config.Shell != nil && m.Config.Shell.Shell == shell {
			return m
		}
	}
	return nil
}

// MockConfigOpener is a test double for domain.ConfigOpener.
// Fields are ordered to minimize memory padding.
type MockConfigOpener struct {
	Configs map[string]*domain.Config
	Err     error
	mu      sync.Mutex
}

// Set stores the config returned for path.
func (m *MockConfigOpener) Set(path string, cfg *domain.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Configs == nil {
		m.Configs = make(map[string]*domain.Config)
	}
	m.Configs[path] = cfg
}

// Open returns the stored config.
func (m *MockConfigOpener) Open(path string) (*domain.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	cfg, ok := m.Configs[path]
	if !ok {
		return nil, domain.ErrConfigNotFound
	}
	return cfg, nil
}

// MockWatcher is a test double for file watching. Trigger simulates a
// change of a watched file.
type MockWatcher struct {
	callbacks map[string][]*watchEntry
	mu        sync.Mutex
}

type watchEntry struct {
	fn     func()
	closed bool
}

// Watch has the signature of engine.WatchFunc.
func (w *MockWatcher) Watch(path string, onChange func()) (io.Closer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.callbacks == nil {
		w.callbacks = make(map[string][]*watchEntry)
	}
	e := &watchEntry{fn: onChange}
	w.callbacks[path] = append(w.callbacks[path], e)
	return closerFunc(func() error {
		w.mu.Lock()
		defer w.mu.Unlock()
		e.closed = true
		return nil
	}), nil
}

// Trigger calls the change callbacks of every open watch on path.
func (w *MockWatcher) Trigger(path string) {
	w.mu.Lock()
	var fns []func()
	for _, e := range w.callbacks[path] {
		if !e.closed {
			fns = append(fns, e.fn)
		}
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Active returns the number of open watches on path.
func (w *MockWatcher) Active(path string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.callbacks[path] {
		if !e.closed {
			n++
		}
	}
	return n
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
