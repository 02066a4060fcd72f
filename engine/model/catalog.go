package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrModelExists is returned when a model name is registered twice.
	ErrModelExists = errors.New("model already registered")
	// ErrUnknownModel is returned when a lookup names a model the catalog does not hold.
	ErrUnknownModel = errors.New("unknown model")
)

// catalog is the implementation of the Catalog interface.
type catalog struct {
	models map[string]Model
	mu     *sync.RWMutex
}

// Catalog is a thread-safe name-to-Model lookup used to resolve the asset references stored in saved maps.
type Catalog interface {
	// Register adds a model under its name.
	//
	// Parameters:
	//   - m: the model to register
	//
	// Returns:
	//   - error: ErrModelExists if the name is taken
	Register(m Model) error

	// Get looks up a model by name.
	//
	// Parameters:
	//   - name: the model identifier
	//
	// Returns:
	//   - Model: the model, or nil if not found
	//   - bool: true if found
	Get(name string) (Model, bool)

	// MarkLoaded flags a registered model as loaded.
	//
	// Parameters:
	//   - name: the model identifier
	//
	// Returns:
	//   - error: ErrUnknownModel if the name is not registered
	MarkLoaded(name string) error

	// Names returns every registered model name in sorted order.
	Names() []string

	// Len returns the number of registered models.
	Len() int
}

var _ Catalog = &catalog{}

// NewCatalog creates an empty Catalog, optionally seeded with models.
//
// Parameters:
//   - models: initial models to register; later duplicates are ignored
//
// Returns:
//   - Catalog: the new catalog
func NewCatalog(models ...Model) Catalog {
	c := &catalog{
		models: make(map[string]Model, len(models)),
		mu:     &sync.RWMutex{},
	}
	for _, m := range models {
		_ = c.Register(m)
	}
	return c
}

func (c *catalog) Register(m Model) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.models[m.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrModelExists, m.Name())
	}
	c.models[m.Name()] = m
	return nil
}

func (c *catalog) Get(name string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.models[name]
	return m, ok
}

func (c *catalog) MarkLoaded(name string) error {
	m, ok := c.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	m.SetLoaded(true)
	return nil
}

func (c *catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}
