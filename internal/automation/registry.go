package automation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry is the authoritative, concurrency-safe store of instances.
// Readers always get copies; mutation goes through the methods below.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Instance
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Instance)}
}

// Add registers a Stopped instance whose cadences have never fired.
func (r *Registry) Add(name string, region Region, intervals [NumCadences]time.Duration) (Instance, error) {
	inst := Instance{Name: strings.TrimSpace(name), Region: region, State: Stopped}
	for i, iv := range intervals {
		// Intervals are persisted as whole seconds.
		if iv < time.Second || iv%time.Second != 0 {
			return Instance{}, fmt.Errorf("%w %q: interval %s of cadence %d is not a whole number of seconds", ErrInvalidInstance, name, iv, i)
		}
		inst.Cadences[i] = Cadence{Interval: iv}
	}
	if err := validate.Struct(inst); err != nil {
		return Instance{}, fmt.Errorf("%w %q: %v", ErrInvalidInstance, name, err)
	}
	if err := validate.Struct(inst.Region); err != nil {
		return Instance{}, fmt.Errorf("%w %q: %v", ErrInvalidInstance, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[inst.Name]; ok {
		return Instance{}, fmt.Errorf("%w: %q", ErrDuplicateName, inst.Name)
	}
	cp := inst
	r.items[inst.Name] = &cp
	return inst, nil
}

// Remove deletes a Stopped instance.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if it.State != Stopped {
		return fmt.Errorf("%w: %q is %s", ErrInstanceActive, name, it.State)
	}
	delete(r.items, name)
	return nil
}

func (r *Registry) Get(name string) (Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[name]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return *it, nil
}

// List returns copies of every instance sorted by name.
func (r *Registry) List() []Instance {
	r.mu.RLock()
	out := make([]Instance, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, *it)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.items))
	for name := range r.items {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// SetRunState stores st and returns the previous state.
func (r *Registry) SetRunState(name string, st RunState) (RunState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[name]
	if !ok {
		return Stopped, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	prev := it.State
	it.State = st
	return prev, nil
}

// MarkFired records at as the last firing time of cadence c.
func (r *Registry) MarkFired(name string, c CadenceID, at time.Time) error {
	if c < 0 || int(c) >= NumCadences {
		return fmt.Errorf("unknown cadence %d", int(c))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	it.Cadences[c].LastFired = at
	return nil
}

// Reset removes every Stopped instance and returns the names of those that
// are still active.
func (r *Registry) Reset() (active []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, it := range r.items {
		if it.State != Stopped {
			active = append(active, name)
			continue
		}
		delete(r.items, name)
	}
	sort.Strings(active)
	return active
}
