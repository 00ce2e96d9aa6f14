package platform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidID       = errors.New("invalid product id")
)

var aliases = map[string]string{
	"wb": "wildberries",
	"oz": "ozon",
}

// CanonicalName lower-cases name and resolves short aliases.
func CanonicalName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if full, ok := aliases[n]; ok {
		return full
	}
	return n
}

// Registry holds the adapters available to a pipeline.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[CanonicalName(a.Name())] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[CanonicalName(name)]
	if !ok {
		return nil, fmt.Errorf("platform %q: %w", name, ErrUnknownPlatform)
	}
	return a, nil
}

// Names returns the registered platform names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
