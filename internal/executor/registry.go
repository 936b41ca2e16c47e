package executor

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks the process groups of live runs so the daemon can kill
// them all on shutdown. A nil Registry tracks nothing.
type Registry struct {
	groups map[string]int
	mu     sync.Mutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]int)}
}

func (r *Registry) add(pid int) string {
	if r == nil {
		return ""
	}
	id := uuid.NewString()
	r.mu.Lock()
	r.groups[id] = pid
	r.mu.Unlock()
	return id
}

func (r *Registry) remove(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.groups, id)
	r.mu.Unlock()
}

// Len returns the number of live process groups.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

// KillAll sends SIGKILL to every live process group and returns how many
// were signalled.
func (r *Registry) KillAll() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	pids := make([]int, 0, len(r.groups))
	for _, pid := range r.groups {
		pids = append(pids, pid)
	}
	r.mu.Unlock()

	n := 0
	for _, pid := range pids {
		if killGroup(pid) == nil {
			n++
		}
	}
	return n
}
