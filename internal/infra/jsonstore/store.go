// Package jsonstore provides a JSON file-based implementation of NamespaceRegistry.
package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/runoshun/magicbin/internal/domain"
)

// registryData represents the JSON file structure.
type registryData struct {
	Namespaces map[string]string `json:"namespaces"` // Config path by namespace
}

// Store implements domain.NamespaceRegistry using a JSON file.
type Store struct {
	path     string
	lockPath string
}

// Ensure Store implements domain.NamespaceRegistry interface.
var _ domain.NamespaceRegistry = (*Store)(nil)

// New creates a new Store for the given file path.
// The file does not need to exist; it will be created on first write.
func New(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Path returns the path of the registry file.
func (s *Store) Path() string {
	return s.path
}

// Remember records that namespace was synced from configPath.
func (s *Store) Remember(namespace, configPath string) error {
	return s.withLockWrite(func(data *registryData) (bool, error) {
		if data.Namespaces[namespace] == configPath {
			return false, nil
		}
		data.Namespaces[namespace] = configPath
		return true, nil
	})
}

// Forget drops the record of namespace.
func (s *Store) Forget(namespace string) error {
	return s.withLockWrite(func(data *registryData) (bool, error) {
		if _, ok := data.Namespaces[namespace]; !ok {
			return false, nil
		}
		delete(data.Namespaces, namespace)
		return true, nil
	})
}

// Registrations returns every record, sorted by namespace.
func (s *Store) Registrations() ([]domain.Registration, error) {
	var regs []domain.Registration
	err := s.withLock(func(data *registryData) error {
		regs = make([]domain.Registration, 0, len(data.Namespaces))
		for ns, path := range data.Namespaces {
			regs = append(regs, domain.Registration{Namespace: ns, ConfigPath: path})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(regs, func(a, b domain.Registration) int {
		return strings.Compare(a.Namespace, b.Namespace)
	})
	return regs, nil
}

// withLock executes fn with a shared (read) lock.
func (s *Store) withLock(fn func(*registryData) error) error {
	lock, err := s.acquireLock(syscall.LOCK_SH)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	data, err := s.read()
	if err != nil {
		return err
	}

	return fn(data)
}

// withLockWrite executes fn with an exclusive (write) lock and writes the
// result when fn reports a change.
func (s *Store) withLockWrite(fn func(*registryData) (bool, error)) error {
	lock, err := s.acquireLock(syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	data, err := s.read()
	if err != nil {
		return err
	}

	changed, err := fn(data)
	if err != nil || !changed {
		return err
	}

	return s.write(data)
}

func (s *Store) acquireLock(lockType int) (*os.File, error) {
	// Ensure lock file directory exists
	dir := filepath.Dir(s.lockPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(lock.Fd()), lockType); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	return lock, nil
}

func (s *Store) releaseLock(lock *os.File) {
	_ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	_ = lock.Close()
}

func (s *Store) read() (*registryData, error) {
	data := &registryData{Namespaces: make(map[string]string)}

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	if err := json.Unmarshal(content, data); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", s.path, err)
	}
	if data.Namespaces == nil {
		data.Namespaces = make(map[string]string)
	}
	return data, nil
}

func (s *Store) write(data *registryData) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
