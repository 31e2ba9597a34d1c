package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

var (
	// ErrFinalized is returned when registering after Finalize.
	ErrFinalized = errors.New("plugin registration is finalized")

	// ErrNotFinalized is returned when dispatching before Finalize.
	ErrNotFinalized = errors.New("plugin registration is not finalized")

	// ErrDuplicatePlugin is returned when a name is registered twice.
	ErrDuplicatePlugin = errors.New("plugin already registered")
)

// Manager owns plugin registration and the frozen dispatch order. It is an
// explicit object injected where needed, never a process-wide singleton, so
// two engines can carry entirely different plugin sets.
//
// Lifecycle: Register any number of specs, then Finalize exactly once.
// Finalize validates the dependency graph (missing and circular
// dependencies are hard errors) and freezes the topological order reused by
// every subsequent apply.
type Manager struct {
	mu        sync.Mutex
	specs     map[string]*Spec
	insertion []string
	ordered   []*Spec
	finalized bool
	logger    *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the diagnostic logger. The default discards everything.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an empty plugin manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		specs:  make(map[string]*Spec),
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a plugin spec. Names must be unique and non-empty.
func (m *Manager) Register(spec *Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalized {
		return ErrFinalized
	}
	name := spec.Name()
	if name == "" {
		return errors.New("plugin name must not be empty")
	}
	if _, exists := m.specs[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrDuplicatePlugin)
	}
	m.specs[name] = spec
	m.insertion = append(m.insertion, name)
	m.logger.Debug("plugin registered", "plugin", name, "deps", spec.Metadata.Dependencies)
	return nil
}

// Finalize validates the dependency graph and freezes the dispatch order.
// It may be called once; missing dependencies, circular dependencies and
// conflict violations all fail with a *DependencyError.
func (m *Manager) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalized {
		return ErrFinalized
	}

	// Feed the graph in (priority desc, name asc) order so the
	// topological tie-break is deterministic and respects priority.
	names := make([]string, len(m.insertion))
	copy(names, m.insertion)
	sort.SliceStable(names, func(i, j int) bool {
		a, b := m.specs[names[i]], m.specs[names[j]]
		if a.Config.Priority != b.Config.Priority {
			return a.Config.Priority > b.Config.Priority
		}
		return a.Name() < b.Name()
	})

	graph := NewDepGraph()
	for _, name := range names {
		graph.AddNode(name)
	}
	for _, name := range names {
		for _, dep := range m.specs[name].Metadata.Dependencies {
			graph.AddDependency(name, dep)
		}
	}

	depErr := &DependencyError{Missing: graph.MissingDependencies()}
	order, cycleReport := graph.TopologicalOrder()
	if cycleReport != nil {
		depErr.Cycles = cycleReport.Cycles
	}
	for _, name := range names {
		for _, conflict := range m.specs[name].Metadata.Conflicts {
			if _, present := m.specs[conflict]; present {
				depErr.Conflicts = append(depErr.Conflicts, [2]string{name, conflict})
			}
		}
	}
	if len(depErr.Missing) > 0 || len(depErr.Cycles) > 0 || len(depErr.Conflicts) > 0 {
		return depErr
	}

	m.ordered = make([]*Spec, len(order))
	for i, name := range order {
		m.ordered[i] = m.specs[name]
	}
	m.finalized = true
	m.logger.Debug("plugin order frozen", "order", order)
	return nil
}

// Finalized reports whether registration is closed.
func (m *Manager) Finalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

// Get returns the named spec.
func (m *Manager) Get(name string) (*Spec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.specs[name]
	return spec, ok
}

// Ordered returns the enabled plugins in frozen topological order. It
// fails before Finalize.
func (m *Manager) Ordered() ([]*Spec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.finalized {
		return nil, ErrNotFinalized
	}
	out := make([]*Spec, 0, len(m.ordered))
	for _, spec := range m.ordered {
		if spec.Config.Enabled {
			out = append(out, spec)
		}
	}
	return out, nil
}

// InitResources fills a fresh state's resource map by running every
// enabled plugin's StateField.Init in dependency order.
func (m *Manager) InitResources(base *domain.State) error {
	ordered, err := m.Ordered()
	if err != nil {
		return err
	}
	for _, spec := range ordered {
		if spec.State == nil {
			continue
		}
		base.Resources[spec.Name()] = spec.State.Init(base)
	}
	return nil
}

// FilterTransaction runs every enabled plugin's filter hook in order.
// The first veto wins; the vetoing plugin's name is returned.
func (m *Manager) FilterTransaction(ctx context.Context, tx *domain.Transaction, state *domain.State) (string, bool, error) {
	ordered, err := m.Ordered()
	if err != nil {
		return "", false, err
	}
	for _, spec := range ordered {
		if !spec.behavior().FilterTransaction(ctx, tx, state) {
			return spec.Name(), false, nil
		}
	}
	return "", true, nil
}

// ApplyStateFields recomputes every enabled plugin's resource for the
// transaction, in frozen dependency order, writing into newState's
// resource map so later plugins observe earlier plugins' fresh values.
func (m *Manager) ApplyStateFields(ctx context.Context, tx *domain.Transaction, oldState, newState *domain.State) error {
	ordered, err := m.Ordered()
	if err != nil {
		return err
	}
	for _, spec := range ordered {
		if spec.State == nil {
			continue
		}
		old := oldState.Resources[spec.Name()]
		next, err := spec.State.Apply(ctx, tx, old, oldState, newState)
		if err != nil {
			return fmt.Errorf("plugin %q state field: %w", spec.Name(), err)
		}
		newState.Resources[spec.Name()] = next
	}
	return nil
}
