package provider

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds adapters in insertion order and answers "which adapter
// serves model X" and "is adapter Y healthy" against a health snapshot
// refreshed by the background probe loop (see NewHealthPoller).
type Registry struct {
	mu        sync.RWMutex
	order     []string
	adapters  map[string]Adapter
	health    map[string]HealthStatus
	lastModel map[string][]ModelInfo
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[string]Adapter),
		health:    make(map[string]HealthStatus),
		lastModel: make(map[string][]ModelInfo),
	}
}

// Register adds an adapter. Construction-time only: callers must not
// register after the health probe loop has started.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
	r.lastModel[name] = a.ListModels()
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// GetAll returns every registered adapter in insertion order.
func (r *Registry) GetAll() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// GetHealthy returns the names of adapters whose last health snapshot was
// healthy, in insertion order.
func (r *Registry) GetHealthy() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if st, ok := r.health[name]; ok && st.Healthy {
			out = append(out, name)
		}
	}
	return out
}

// IsHealthy reports whether the named adapter's last snapshot was healthy.
// An adapter with no snapshot yet is reported unhealthy.
func (r *Registry) IsHealthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.health[name]
	return ok && st.Healthy
}

// FindProviderForModel linearly scans each adapter's last-known model
// list and returns the first adapter that lists the model.
func (r *Registry) FindProviderForModel(model string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		for _, m := range r.lastModel[name] {
			if m.ID == model {
				return r.adapters[name], nil
			}
		}
	}
	return nil, fmt.Errorf("no provider found for model: %s", model)
}

// GetAllModels returns the union of every adapter's model list,
// deduplicated by (provider, id).
func (r *Registry) GetAllModels() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	out := make([]ModelInfo, 0)
	for _, name := range r.order {
		for _, m := range r.lastModel[name] {
			key := name + "/" + m.ID
			if seen[key] {
				continue
			}
			seen[key] = true
			m.Provider = name
			out = append(out, m)
		}
	}
	return out
}

// GetProvidersStatus returns the latest health snapshot for every adapter.
func (r *Registry) GetProvidersStatus() map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]HealthStatus, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

// HealthCheckAll runs every adapter's HealthCheck in parallel and stores
// the results as the new snapshot. Probe failures are not fatal to the
// registry: a failing adapter simply reports unhealthy.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	adapters := make(map[string]Adapter, len(r.adapters))
	for k, v := range r.adapters {
		adapters[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]HealthStatus, len(adapters))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, a := range adapters {
		wg.Add(1)
		go func(n string, ad Adapter) {
			defer wg.Done()
			status := ad.HealthCheck(ctx)
			models := ad.ListModels()
			status.ModelCount = len(models)
			mu.Lock()
			results[n] = status
			mu.Unlock()
		}(name, a)
	}
	wg.Wait()

	r.mu.Lock()
	for name, status := range results {
		r.health[name] = status
		if a, ok := r.adapters[name]; ok {
			r.lastModel[name] = a.ListModels()
		}
	}
	r.mu.Unlock()

	return results
}
