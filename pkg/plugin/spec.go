package plugin

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// Metadata identifies a plugin and its relationships to other plugins.
type Metadata struct {
	Name         string   `json:"name" yaml:"name" mapstructure:"name"`
	Version      string   `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty" mapstructure:"dependencies"`
	Conflicts    []string `json:"conflicts,omitempty" yaml:"conflicts,omitempty" mapstructure:"conflicts"`
}

// Config carries per-plugin runtime configuration. Priority breaks ties
// between plugins with no dependency relationship: higher priority runs
// earlier.
type Config struct {
	Enabled  bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Priority int  `json:"priority,omitempty" yaml:"priority,omitempty" mapstructure:"priority"`
}

// DefaultConfig returns the enabled, priority-0 configuration.
func DefaultConfig() Config {
	return Config{Enabled: true}
}

// Behavior is the closed hook surface a plugin may implement. Transactions
// and states are visible to plugin code only through these hooks and
// StateField.Apply. Embed BaseBehavior to get no-op defaults.
type Behavior interface {
	// FilterTransaction may veto a transaction before any step runs.
	// Returning false rejects the whole transaction; the state is
	// returned unchanged to the caller.
	FilterTransaction(ctx context.Context, tx *domain.Transaction, state *domain.State) bool

	// AppendTransaction may enqueue one follow-up transaction after the
	// given transactions have been applied. The follow-up runs through
	// the full apply pipeline itself, bounded by the engine's follow-up
	// depth limit. Returning nil appends nothing.
	AppendTransaction(ctx context.Context, applied []*domain.Transaction, oldState, newState *domain.State) (*domain.Transaction, error)
}

// BaseBehavior provides no-op defaults for every hook.
type BaseBehavior struct{}

func (BaseBehavior) FilterTransaction(ctx context.Context, tx *domain.Transaction, state *domain.State) bool {
	return true
}

func (BaseBehavior) AppendTransaction(ctx context.Context, applied []*domain.Transaction, oldState, newState *domain.State) (*domain.Transaction, error) {
	return nil, nil
}

// StateField derives a plugin's resource from each applied transaction.
type StateField interface {
	// Init produces the plugin's resource for a fresh document state.
	Init(base *domain.State) domain.Resource

	// Apply recomputes the resource for a transaction. newState is the
	// state under construction: its pool is final and the resources of
	// plugins earlier in dependency order are already updated, so a
	// dependent may observe its dependency's fresh resource.
	Apply(ctx context.Context, tx *domain.Transaction, old domain.Resource, oldState, newState *domain.State) (domain.Resource, error)
}

// Spec bundles everything the manager needs to register one plugin.
type Spec struct {
	Metadata Metadata
	Config   Config
	State    StateField // optional
	Behavior Behavior   // optional; nil behaves like BaseBehavior
}

// Name returns the plugin name.
func (s *Spec) Name() string {
	return s.Metadata.Name
}

func (s *Spec) behavior() Behavior {
	if s.Behavior == nil {
		return BaseBehavior{}
	}
	return s.Behavior
}
