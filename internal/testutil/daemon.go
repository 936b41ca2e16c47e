package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/runoshun/magicbin/internal/domain"
)

// MockDaemon is an in-memory domain.Daemon. Actions walk tasks through
// Transitions and publish every step to task watchers.
// Fields are ordered to minimize memory padding.
type MockDaemon struct {
	Infos       map[string]*domain.NamespaceInfo
	TaskList    map[string][]domain.TaskInfo // Tasks by namespace
	Buffers     map[string][]byte            // Retained output by "namespace/task"
	Transitions map[domain.TaskAction][]domain.Status
	SyncResult  *domain.SyncResult
	SyncErr     error
	ActionErr   error
	ConfirmErr  error
	watchers    []chan []domain.TaskUpdate
	Chunks      [][]byte // Live output sent by WatchBuffer after the snapshot
	Synced      []string
	Actions     []string // "namespace:ACTION" or "namespace/task:ACTION"
	Confirmed   []string
	mu          sync.Mutex
}

// Ensure MockDaemon implements domain.Daemon.
var _ domain.Daemon = (*MockDaemon)(nil)

// NewMockDaemon creates a MockDaemon whose reboots go through starting to
// running and whose stops go through stopping to cancelled.
func NewMockDaemon() *MockDaemon {
	return &MockDaemon{
		Infos:    make(map[string]*domain.NamespaceInfo),
		TaskList: make(map[string][]domain.TaskInfo),
		Buffers:  make(map[string][]byte),
		Transitions: map[domain.TaskAction][]domain.Status{
			domain.TaskActionReboot: {domain.StatusStarting, domain.StatusRunning},
			domain.TaskActionStop:   {domain.StatusStopping, domain.StatusCancelled},
		},
	}
}

// AddTask registers a task, creating its namespace if needed.
func (d *MockDaemon) AddTask(namespace, id string, status domain.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.Infos[namespace]; !ok {
		d.Infos[namespace] = &domain.NamespaceInfo{ID: namespace, Name: namespace, Watched: true}
	}
	d.TaskList[namespace] = append(d.TaskList[namespace], domain.TaskInfo{ID: id, Name: id, Status: status})
	d.Infos[namespace].TaskCount = len(d.TaskList[namespace])
}

// Status returns the current status of a task.
func (d *MockDaemon) Status(namespace, id string) domain.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.TaskList[namespace] {
		if t.ID == id {
			return t.Status
		}
	}
	return ""
}

// ActionLog returns a copy of the recorded actions.
func (d *MockDaemon) ActionLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Actions...)
}

// Sync implements domain.Daemon.
func (d *MockDaemon) Sync(_ context.Context, path string) (*domain.SyncResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SyncErr != nil {
		return nil, d.SyncErr
	}
	d.Synced = append(d.Synced, path)
	if d.SyncResult != nil {
		return d.SyncResult, nil
	}
	return &domain.SyncResult{Warnings: []string{}}, nil
}

// Namespace implements domain.Daemon.
func (d *MockDaemon) Namespace(_ context.Context, namespace string) (*domain.NamespaceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.Infos[namespace]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

// Tasks implements domain.Daemon.
func (d *MockDaemon) Tasks(_ context.Context, namespace string) ([]domain.TaskInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.Infos[namespace]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNamespaceNotFound, namespace)
	}
	return append([]domain.TaskInfo{}, d.TaskList[namespace]...), nil
}

// Task implements domain.Daemon.
func (d *MockDaemon) Task(_ context.Context, namespace, taskID string) (*domain.TaskInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.TaskList[namespace] {
		if t.ID == taskID {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

// Tail implements domain.Daemon. Lines are counted on "\n".
func (d *MockDaemon) Tail(_ context.Context, namespace, taskID string, lines int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.Buffers[namespace+"/"+taskID]
	return lastLines(buf, lines), nil
}

func lastLines(buf []byte, n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	count := 0
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i] == '\n' && i != len(buf)-1 {
			count++
			if count == n {
				return append([]byte{}, buf[i+1:]...)
			}
		}
	}
	return append([]byte{}, buf...)
}

// ApplyNamespaceAction implements domain.Daemon.
func (d *MockDaemon) ApplyNamespaceAction(_ context.Context, namespace string, action domain.NamespaceAction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ActionErr != nil {
		return d.ActionErr
	}
	if _, ok := d.Infos[namespace]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNamespaceNotFound, namespace)
	}
	d.Actions = append(d.Actions, fmt.Sprintf("%s:%s", namespace, action))

	switch action {
	case domain.NamespaceActionReboot:
		d.transitionAll(namespace, domain.TaskActionReboot)
	case domain.NamespaceActionStop:
		d.transitionAll(namespace, domain.TaskActionStop)
	case domain.NamespaceActionWatch:
		d.Infos[namespace].Watched = true
	case domain.NamespaceActionUnwatch:
		d.Infos[namespace].Watched = false
	}
	return nil
}

// ApplyTaskAction implements domain.Daemon.
func (d *MockDaemon) ApplyTaskAction(_ context.Context, namespace, taskID string, action domain.TaskAction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ActionErr != nil {
		return d.ActionErr
	}
	if d.index(namespace, taskID) < 0 {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	d.Actions = append(d.Actions, fmt.Sprintf("%s/%s:%s", namespace, taskID, action))
	d.transition(namespace, taskID, action)
	return nil
}

// Confirm implements domain.Daemon.
func (d *MockDaemon) Confirm(_ context.Context, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConfirmErr != nil {
		return d.ConfirmErr
	}
	d.Confirmed = append(d.Confirmed, token)
	return nil
}

// WatchTasks implements domain.Daemon.
func (d *MockDaemon) WatchTasks(ctx context.Context, namespace, taskID string, fn func([]domain.TaskUpdate) error) error {
	ch := make(chan []domain.TaskUpdate, 64)

	d.mu.Lock()
	d.watchers = append(d.watchers, ch)
	var snapshot []domain.TaskUpdate
	for _, t := range d.TaskList[namespace] {
		if taskID == "" || t.ID == taskID {
			cp := t
			snapshot = append(snapshot, domain.TaskUpdate{Pointer: domain.Pointer{ID: t.ID}, Entity: &cp})
		}
	}
	d.mu.Unlock()

	if err := fn(snapshot); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-ch:
			var filtered []domain.TaskUpdate
			for _, u := range batch {
				if taskID == "" || u.Pointer.ID == taskID {
					filtered = append(filtered, u)
				}
			}
			if len(filtered) == 0 {
				continue
			}
			if err := fn(filtered); err != nil {
				return err
			}
		}
	}
}

// WatchBuffer implements domain.Daemon.
func (d *MockDaemon) WatchBuffer(ctx context.Context, namespace, taskID string, fn func([]byte) error) error {
	d.mu.Lock()
	snapshot := append([]byte{}, d.Buffers[namespace+"/"+taskID]...)
	chunks := append([][]byte(nil), d.Chunks...)
	d.mu.Unlock()

	if err := fn(snapshot); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func (d *MockDaemon) index(namespace, taskID string) int {
	for i, t := range d.TaskList[namespace] {
		if t.ID == taskID {
			return i
		}
	}
	return -1
}

func (d *MockDaemon) transitionAll(namespace string, action domain.TaskAction) {
	for _, t := range d.TaskList[namespace] {
		d.transition(namespace, t.ID, action)
	}
}

// transition applies the configured status steps. Caller holds d.mu.
func (d *MockDaemon) transition(namespace, taskID string, action domain.TaskAction) {
	i := d.index(namespace, taskID)
	for _, status := range d.Transitions[action] {
		d.TaskList[namespace][i].Status = status
		cp := d.TaskList[namespace][i]
		update := []domain.TaskUpdate{{Pointer: domain.Pointer{ID: taskID}, Entity: &cp}}
		for _, ch := range d.watchers {
			select {
			case ch <- update:
			default:
			}
		}
	}
}

// MockConfigFinder is a test double for domain.ConfigFinder.
type MockConfigFinder struct {
	Config *domain.Config
	Err    error
	Dirs   []string
}

// Find implements domain.ConfigFinder.
func (m *MockConfigFinder) Find(dir string) (*domain.Config, error) {
	m.Dirs = append(m.Dirs, dir)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Config == nil {
		return nil, domain.ErrConfigNotFound
	}
	return m.Config, nil
}

// MockConfigInitializer is a test double for domain.ConfigInitializer.
type MockConfigInitializer struct {
	Err       error
	Dir       string
	Namespace string
	Path      string
}

// Init implements domain.ConfigInitializer.
func (m *MockConfigInitializer) Init(dir, namespace string) (string, error) {
	m.Dir, m.Namespace = dir, namespace
	if m.Err != nil {
		return "", m.Err
	}
	if m.Path == "" {
		m.Path = dir + "/" + domain.ConfigFileName
	}
	return m.Path, nil
}

// MockNamespaceRegistry is an in-memory domain.NamespaceRegistry.
type MockNamespaceRegistry struct {
	Paths map[string]string
	Err   error
	mu    sync.Mutex
}

// Ensure MockNamespaceRegistry implements domain.NamespaceRegistry.
var _ domain.NamespaceRegistry = (*MockNamespaceRegistry)(nil)

// NewMockNamespaceRegistry creates an empty MockNamespaceRegistry.
func NewMockNamespaceRegistry() *MockNamespaceRegistry {
	return &MockNamespaceRegistry{Paths: make(map[string]string)}
}

// Remember implements domain.NamespaceRegistry.
func (r *MockNamespaceRegistry) Remember(namespace, configPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Paths[namespace] = configPath
	return nil
}

// Forget implements domain.NamespaceRegistry.
func (r *MockNamespaceRegistry) Forget(namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	delete(r.Paths, namespace)
	return nil
}

// Registrations implements domain.NamespaceRegistry.
func (r *MockNamespaceRegistry) Registrations() ([]domain.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	regs := make([]domain.Registration, 0, len(r.Paths))
	for ns, path := range r.Paths {
		regs = append(regs, domain.Registration{Namespace: ns, ConfigPath: path})
	}
	slices.SortFunc(regs, func(a, b domain.Registration) int { return strings.Compare(a.Namespace, b.Namespace) })
	return regs, nil
}

// Path returns the remembered config path of namespace.
func (r *MockNamespaceRegistry) Path(namespace string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Paths[namespace]
}
