package internal

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// CleanupManager tracks resources and ensures ordered cleanup in LIFO order.
type CleanupManager struct {
	mu     sync.Mutex
	funcs  []cleanupFunc
	logger hclog.Logger
}

type cleanupFunc struct {
	name string
	fn   func() error
}

// NewCleanupManager creates a new cleanup manager. A nil logger discards.
func NewCleanupManager(logger hclog.Logger) *CleanupManager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CleanupManager{logger: logger}
}

// Add registers a cleanup function. Functions are executed in LIFO order
// (last added, first executed) to ensure proper cleanup sequencing.
func (m *CleanupManager) Add(name string, fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append([]cleanupFunc{{name, fn}}, m.funcs...)
}

// Execute runs all cleanup functions in reverse order (LIFO) and returns
// every failure combined. It always runs all of them, even if some fail,
// and each runs at most once.
func (m *CleanupManager) Execute() error {
	m.mu.Lock()
	funcs := m.funcs
	m.funcs = nil
	m.mu.Unlock()

	var result error
	for _, cleanup := range funcs {
		m.logger.Debug("cleaning up", "resource", cleanup.name)
		if err := cleanup.fn(); err != nil {
			m.logger.Warn("cleanup failed", "resource", cleanup.name, "error", err)
			result = multierror.Append(result, fmt.Errorf("cleanup failed for %s: %w", cleanup.name, err))
		}
	}
	return result
}
