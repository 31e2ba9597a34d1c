package weft

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/codec"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/aretw0/weft/pkg/session"
	"github.com/aretw0/weft/pkg/tree"
)

// Engine is the high-level entry point for the Weft library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime  *runtime.Engine
	plugins  *plugin.Manager
	sessions *session.Manager

	specs       []*plugin.Spec
	docSchema   schema.Schema
	store       ports.SnapshotStore
	payloads    *codec.PayloadRegistry
	runtimeOpts []runtime.EngineOption
	poolOpts    []tree.Option
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithPlugins registers plugin specs. Registration order matters only as a
// tie-break; the effective order comes from priorities and dependencies.
func WithPlugins(specs ...*plugin.Spec) Option {
	return func(e *Engine) {
		e.specs = append(e.specs, specs...)
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLogLevel enables the built-in stderr logger at the given level.
// Mutually exclusive with WithLogger; the last option applied wins.
func WithLogLevel(level slog.Level) Option {
	return func(e *Engine) {
		e.logger = logging.New(level)
	}
}

// WithSchema validates every candidate document against the given schema.
// A transaction producing a tree the schema rejects fails to apply.
func WithSchema(s schema.Schema) Option {
	return func(e *Engine) {
		e.docSchema = s
	}
}

// WithMaxFollowUps overrides the bound on plugin follow-up transactions.
func WithMaxFollowUps(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxFollowUps(n))
	}
}

// WithSnapshotStore enables document persistence through the given store.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithPayloadCodec registers a codec for one plugin resource payload type,
// keyed by its type tag. Resources without a codec block snapshot export.
func WithPayloadCodec(tag string, c codec.PayloadCodec) Option {
	return func(e *Engine) {
		e.payloads.Register(tag, c)
	}
}

// WithPoolOptions forwards pool options to every document the engine
// creates or restores, for example a query cache hook feeding metrics.
func WithPoolOptions(opts ...tree.Option) Option {
	return func(e *Engine) {
		e.poolOpts = append(e.poolOpts, opts...)
	}
}

// New initializes a Weft engine. Plugin dependency problems (missing
// dependencies, cycles, conflicts) surface here as a
// *plugin.DependencyError, before any document exists.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		payloads: codec.NewPayloadRegistry(),
	}
	for _, opt := range opts {
		opt(eng)
	}

	// Ensure logger is initialized (so we don't pass nil to runtime, which
	// would overwrite its default).
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	eng.plugins = plugin.NewManager(plugin.WithLogger(eng.logger))
	for _, spec := range eng.specs {
		if err := eng.plugins.Register(spec); err != nil {
			return nil, err
		}
	}
	if err := eng.plugins.Finalize(); err != nil {
		return nil, err
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	if eng.docSchema != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithValidator(eng.docSchema.ValidatePool))
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)

	eng.runtime = runtime.NewEngine(eng.plugins, runtimeOpts...)

	if eng.store != nil {
		eng.sessions = session.NewManager(eng.store, eng.runtime,
			session.WithPayloadRegistry(eng.payloads),
			session.WithPoolOptions(eng.poolOpts...),
			session.WithLogger(eng.logger),
		)
	}

	return eng, nil
}

// NewDocument creates a version-0 state rooted at the given node, with every
// enabled plugin's resource initialized.
func (e *Engine) NewDocument(root tree.Node) (*domain.State, error) {
	if len(root.Content) > 0 {
		return nil, fmt.Errorf("new document: root %s must be childless, restore or build the tree instead", root.ID)
	}
	pool := tree.New(root, e.poolOpts...)
	if e.docSchema != nil {
		if err := e.docSchema.ValidatePool(pool); err != nil {
			return nil, err
		}
	}
	state := domain.NewState(pool)
	if err := e.plugins.InitResources(state); err != nil {
		return nil, err
	}
	return state, nil
}

// Apply runs a committed transaction through the plugin pipeline and returns
// the resulting state. On veto the input state comes back unchanged with a
// nil error; on failure the input state remains current.
func (e *Engine) Apply(ctx context.Context, state *domain.State, tx *domain.Transaction) (*domain.State, error) {
	return e.runtime.Apply(ctx, state, tx)
}

// Snapshot persists the state under the given document ID.
// Requires WithSnapshotStore.
func (e *Engine) Snapshot(ctx context.Context, docID string, state *domain.State) error {
	if e.sessions == nil {
		return fmt.Errorf("no snapshot store configured")
	}
	return e.sessions.Save(ctx, docID, state)
}

// Restore loads a previously persisted document state.
// Requires WithSnapshotStore.
func (e *Engine) Restore(ctx context.Context, docID string) (*domain.State, error) {
	if e.sessions == nil {
		return nil, fmt.Errorf("no snapshot store configured")
	}
	return e.sessions.Load(ctx, docID)
}

// Sessions returns the document session manager, or nil when no snapshot
// store is configured. Use it for single-writer apply-and-persist flows.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Plugins returns the finalized plugin manager.
func (e *Engine) Plugins() *plugin.Manager {
	return e.plugins
}
