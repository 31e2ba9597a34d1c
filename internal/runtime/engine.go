package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
	"github.com/aretw0/weft/pkg/tree"
)

// DefaultMaxFollowUps bounds plugin-triggered follow-up transactions per
// apply. Exceeding the bound is a configuration error in the plugin set
// (typically two plugins appending transactions at each other), reported as
// domain.ErrFollowUpLimit rather than silently stopping.
const DefaultMaxFollowUps = 5

// Engine runs the transaction apply pipeline. The engine itself is
// stateless between calls: every Apply maps an input State and Transaction
// to a fresh State, so callers decide how states are retained and
// serialized. Exactly one Apply is expected to be logically in flight per
// document; readers of previously returned states need no coordination.
type Engine struct {
	plugins      *plugin.Manager
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	maxFollowUps int
	validate     Validator
}

// Validator checks a candidate pool before it becomes the current state.
// Returning an error rejects the transaction that produced the pool.
type Validator func(*tree.Pool) error

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithValidator runs the given check against every candidate pool. A
// failing check rejects the transaction before any state field runs.
func WithValidator(v Validator) EngineOption {
	return func(e *Engine) {
		e.validate = v
	}
}

// WithMaxFollowUps overrides the follow-up transaction depth bound.
func WithMaxFollowUps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxFollowUps = n
		}
	}
}

// NewEngine creates an engine over a finalized plugin manager.
func NewEngine(plugins *plugin.Manager, opts ...EngineOption) *Engine {
	e := &Engine{
		plugins:      plugins,
		logger:       logging.NewNop(),
		maxFollowUps: DefaultMaxFollowUps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs a committed transaction through the full pipeline:
//
//  1. every enabled plugin's filter hook (a veto returns the input state
//     unchanged, with no error),
//  2. the step fold producing the candidate pool, checked by the optional
//     pool validator,
//  3. every state field in frozen dependency order,
//  4. every append hook, each follow-up transaction recursing through this
//     same pipeline up to the follow-up depth bound.
//
// On any error the input state is left untouched and remains the current
// state; no partial commit is ever observable.
func (e *Engine) Apply(ctx context.Context, state *domain.State, tx *domain.Transaction) (*domain.State, error) {
	return e.applyAtDepth(ctx, state, tx, 0)
}

func (e *Engine) applyAtDepth(ctx context.Context, state *domain.State, tx *domain.Transaction, depth int) (*domain.State, error) {
	if !tx.Committed() {
		return nil, fmt.Errorf("apply transaction %s: %w", tx.ID, domain.ErrTransactionOpen)
	}

	// 1. Filters: any veto rejects the whole transaction.
	vetoedBy, ok, err := e.plugins.FilterTransaction(ctx, tx, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.logger.Debug("transaction vetoed", "tx", tx.ID, "plugin", vetoedBy)
		e.emitTransaction(ctx, e.hooks.OnTransactionFiltered, domain.EventTransactionFiltered, tx, state.Version, vetoedBy, nil)
		return state, nil
	}

	// 2. Fold steps into the candidate pool. Pools are immutable, so a
	// mid-fold failure cannot leave partial writes behind.
	pool, err := tx.Fold(state.Pool)
	if err != nil {
		e.emitTransaction(ctx, e.hooks.OnTransactionFailed, domain.EventTransactionFailed, tx, state.Version, "", err)
		return nil, err
	}

	if e.validate != nil {
		if err := e.validate(pool); err != nil {
			err = fmt.Errorf("transaction %s: %w", tx.ID, err)
			e.emitTransaction(ctx, e.hooks.OnTransactionFailed, domain.EventTransactionFailed, tx, state.Version, "", err)
			return nil, err
		}
	}

	// 3. State fields in dependency order over the copy-on-write
	// resource map.
	next := state.Next(pool)
	if err := e.plugins.ApplyStateFields(ctx, tx, state, next); err != nil {
		e.emitTransaction(ctx, e.hooks.OnTransactionFailed, domain.EventTransactionFailed, tx, state.Version, "", err)
		return nil, err
	}

	e.logger.Debug("transaction applied", "tx", tx.ID, "version", next.Version, "steps", len(tx.Steps), "depth", depth)
	e.emitTransaction(ctx, e.hooks.OnTransactionApplied, domain.EventTransactionApplied, tx, next.Version, "", nil)

	// 4. Append hooks; each follow-up runs the full pipeline.
	ordered, err := e.plugins.Ordered()
	if err != nil {
		return nil, err
	}
	applied := []*domain.Transaction{tx}
	for _, spec := range ordered {
		behavior := spec.Behavior
		if behavior == nil {
			continue
		}
		followUp, err := behavior.AppendTransaction(ctx, applied, state, next)
		if err != nil {
			e.emitTransaction(ctx, e.hooks.OnTransactionFailed, domain.EventTransactionFailed, tx, state.Version, spec.Name(), err)
			return nil, fmt.Errorf("plugin %q append: %w", spec.Name(), err)
		}
		if followUp == nil {
			continue
		}
		if depth+1 > e.maxFollowUps {
			err := fmt.Errorf("plugin %q: %w (max %d)", spec.Name(), domain.ErrFollowUpLimit, e.maxFollowUps)
			e.emitTransaction(ctx, e.hooks.OnTransactionFailed, domain.EventTransactionFailed, followUp, next.Version, spec.Name(), err)
			return nil, err
		}
		e.emitTransaction(ctx, e.hooks.OnFollowUp, domain.EventFollowUp, followUp, next.Version, spec.Name(), nil)
		before := next.Version
		next, err = e.applyAtDepth(ctx, next, followUp, depth+1)
		if err != nil {
			return nil, err
		}
		// A vetoed follow-up leaves the version unchanged; later plugins
		// must not see it among the applied transactions.
		if next.Version != before {
			applied = append(applied, followUp)
		}
	}

	return next, nil
}

func (e *Engine) emitTransaction(ctx context.Context, hook func(context.Context, *domain.TransactionEvent), eventType domain.EventType, tx *domain.Transaction, version uint64, pluginName string, cause error) {
	if hook == nil {
		return
	}
	ev := &domain.TransactionEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      eventType,
		},
		TransactionID: tx.ID,
		BaseVersion:   tx.BaseVersion,
		Steps:         len(tx.Steps),
		Plugin:        pluginName,
	}
	if eventType == domain.EventTransactionApplied {
		ev.NewVersion = version
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	hook(ctx, ev)
}
