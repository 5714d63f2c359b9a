package container

import (
	"context"
	"sync"

	"github.com/aiplusall/researchbench/internal/logger"
)

type namedCleanup struct {
	name    string
	cleanup func() error
}

// ResourceCleaner runs registered cleanups in reverse registration order.
type ResourceCleaner struct {
	mu       sync.Mutex
	cleanups []namedCleanup
}

// NewResourceCleaner creates an empty cleaner.
func NewResourceCleaner() *ResourceCleaner {
	return &ResourceCleaner{}
}

// RegisterWithName adds a named cleanup hook.
func (c *ResourceCleaner) RegisterWithName(name string, cleanup func() error) {
	c.mu.Lock()
	c.cleanups = append(c.cleanups, namedCleanup{name: name, cleanup: cleanup})
	c.mu.Unlock()
}

// Cleanup runs every hook, newest first, collecting errors.
func (c *ResourceCleaner) Cleanup() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		entry := c.cleanups[i]
		if err := entry.cleanup(); err != nil {
			logger.Errorf(context.Background(), "cleanup %s failed: %v", entry.name, err)
			errs = append(errs, err)
		}
	}
	return errs
}
