package executor

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrModuleNotInstalled is wrapped by Require with the names that are missing.
var ErrModuleNotInstalled = errors.New("module not installed")

// Modules is the set of host modules installed in this process. Variants name the
// modules they need and construction fails when one is missing.
type Modules struct {
	mu        sync.RWMutex
	installed map[string]bool
}

func NewModules(names ...string) *Modules {
	m := &Modules{installed: make(map[string]bool, len(names))}
	m.Install(names...)
	return m
}

func (m *Modules) Install(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.installed[n] = true
	}
}

func (m *Modules) Installed(name string) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.installed[name]
}

// Missing returns the names that are not installed, in the order given.
func (m *Modules) Missing(names ...string) []string {
	var missing []string
	for _, n := range names {
		if !m.Installed(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// Require fails with ErrModuleNotInstalled when any of names is missing.
func (m *Modules) Require(names ...string) error {
	if missing := m.Missing(names...); len(missing) > 0 {
		return errors.Wrap(ErrModuleNotInstalled, strings.Join(missing, ", "))
	}
	return nil
}

func (m *Modules) Names() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.installed))
	for n := range m.installed {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
