package engine

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/runoshun/magicbin/internal/domain"
)

const descriptionReadError = "Failed to open the requested description file."

type description struct {
	value string
	path  string // set when the description comes from a file
}

// Controller owns the tasks of one namespace and reconciles them against
// the namespace configuration.
// Fields are ordered to minimize memory padding.
type Controller struct {
	core        *Core
	tasks       map[string]*Task
	description *description
	watchers    []io.Closer
	logger      *slog.Logger
	namespace   string
	configPath  string
	watched     bool
}

func newController(core *Core, namespace string) *Controller {
	return &Controller{
		core:      core,
		namespace: namespace,
		tasks:     make(map[string]*Task),
		watched:   true,
		logger:    core.logger.With("namespace", namespace),
	}
}

// Namespace returns the namespace id.
func (c *Controller) Namespace() string { return c.namespace }

// Sync makes the task set match cfg. Tasks no longer declared are stopped
// and dropped; declared tasks are created as needed and synced.
func (c *Controller) Sync(cfg *domain.Config) {
	c.configPath = cfg.Path

	switch {
	case cfg.DescriptionFile != "":
		path := cfg.DescriptionFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(cfg.Path), path)
		}
		c.description = &description{path: path, value: readDescription(path)}
	case cfg.Description != nil:
		c.description = &description{value: *cfg.Description}
	default:
		c.description = nil
	}

	for id, task := range c.tasks {
		if _, ok := cfg.Tasks[id]; !ok {
			c.logger.Debug("task removed", "task", id)
			delete(c.tasks, id)
			task.dispose()
		}
	}

	ids := make([]string, 0, len(cfg.Tasks))
	for id := range cfg.Tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	// Create every task before syncing any so dependency lookups see the full set.
	for _, id := range ids {
		if _, ok := c.tasks[id]; !ok {
			c.tasks[id] = newTask(c.core, c.namespace, id)
		}
	}
	for _, id := range ids {
		if task, ok := c.tasks[id]; ok {
			task.Sync(cfg.Tasks[id])
		}
	}

	c.Watch(c.watched)
	c.core.namespaceUpdated.Emit(c.namespace)
}

func readDescription(path string) string {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the namespace configuration
	if err != nil {
		return descriptionReadError
	}
	return string(data)
}

// Watch (re)installs or removes the filesystem watches on the config file
// and the description file.
func (c *Controller) Watch(enabled bool) {
	for _, w := range c.watchers {
		if err := w.Close(); err != nil {
			c.logger.Debug("close watcher", "error", err)
		}
	}
	c.watchers = nil

	c.watched = enabled
	if !enabled || c.core.watch == nil {
		return
	}

	if c.configPath != "" {
		c.addWatch(c.configPath, c.configChanged(c.configPath))
	}
	if c.description != nil && c.description.path != "" {
		c.addWatch(c.description.path, c.descriptionChanged(c.description.path))
	}
}

func (c *Controller) addWatch(path string, onChange func()) {
	w, err := c.core.watch(path, onChange)
	if err != nil {
		c.logger.Warn("watch file", "path", path, "error", err)
		return
	}
	c.watchers = append(c.watchers, w)
}

// configChanged returns the watch callback of the config file. It runs on
// the watcher goroutine.
func (c *Controller) configChanged(path string) func() {
	return func() {
		if c.core.opener == nil {
			return
		}
		cfg, err := c.core.opener.Open(path)
		c.core.loop.Post(func() {
			if err != nil {
				c.logger.Warn("reload configuration", "path", path, "error", err)
				return
			}
			if c.configPath != path {
				return
			}
			c.logger.Info("configuration changed; syncing", "path", path)
			c.Sync(cfg)
		})
	}
}

// descriptionChanged returns the watch callback of the description file.
func (c *Controller) descriptionChanged(path string) func() {
	return func() {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the namespace configuration
		if err != nil {
			return
		}
		c.core.loop.Post(func() {
			if c.description == nil || c.description.path != path {
				return
			}
			c.description.value = string(data)
			c.core.namespaceUpdated.Emit(c.namespace)
		})
	}
}

// SetWatched changes the watch flag and notifies observers.
func (c *Controller) SetWatched(enabled bool) {
	c.Watch(enabled)
	c.core.namespaceUpdated.Emit(c.namespace)
}

// Tasks returns the tasks sorted by id.
func (c *Controller) Tasks() []*Task {
	tasks := make([]*Task, 0, len(c.tasks))
	for _, task := range c.tasks {
		tasks = append(tasks, task)
	}
	slices.SortFunc(tasks, func(a, b *Task) int { return cmp.Compare(a.id, b.id) })
	return tasks
}

// TryTask returns the task with id, or nil.
func (c *Controller) TryTask(id string) *Task {
	return c.tasks[id]
}

// Task returns the task with id.
func (c *Controller) Task(id string) (*Task, error) {
	task := c.TryTask(id)
	if task == nil {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrTaskNotFound, c.namespace, id)
	}
	return task, nil
}

// TaskInfos returns the state of every task, sorted by id.
func (c *Controller) TaskInfos() []domain.TaskInfo {
	tasks := c.Tasks()
	infos := make([]domain.TaskInfo, len(tasks))
	for i, task := range tasks {
		infos[i] = task.Info()
	}
	return infos
}

// Info returns the externally visible state of the namespace.
func (c *Controller) Info() domain.NamespaceInfo {
	info := domain.NamespaceInfo{
		ID:         c.namespace,
		Name:       c.namespace,
		ConfigPath: c.configPath,
		TaskCount:  len(c.tasks),
		Watched:    c.watched,
	}
	if c.description != nil {
		value := c.description.value
		info.Description = &value
	}
	return info
}

// RebootAll reboots every task.
func (c *Controller) RebootAll() {
	for _, task := range c.Tasks() {
		task.Reboot()
	}
}

// StopAll stops every task.
func (c *Controller) StopAll() {
	for _, task := range c.Tasks() {
		task.Stop(StopOptions{})
	}
}

// Apply runs a namespace action.
func (c *Controller) Apply(action domain.NamespaceAction) error {
	switch action {
	case domain.NamespaceActionWatch:
		c.SetWatched(true)
	case domain.NamespaceActionUnwatch:
		c.SetWatched(false)
	case domain.NamespaceActionReboot:
		c.RebootAll()
	case domain.NamespaceActionStop:
		c.StopAll()
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, action)
	}
	return nil
}

// ApplyTask runs a task action.
func (c *Controller) ApplyTask(id string, action domain.TaskAction) error {
	task, err := c.Task(id)
	if err != nil {
		return err
	}
	switch action {
	case domain.TaskActionReboot:
		task.Reboot()
	case domain.TaskActionStop:
		task.Stop(StopOptions{})
	case domain.TaskActionClear:
		task.Clear()
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, action)
	}
	return nil
}
