package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTransactionApplied  EventType = "transaction_applied"
	EventTransactionFiltered EventType = "transaction_filtered"
	EventTransactionFailed   EventType = "transaction_failed"
	EventFollowUp            EventType = "follow_up"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// TransactionEvent describes one transaction passing through the apply
// pipeline.
type TransactionEvent struct {
	EventBase
	TransactionID string `json:"transaction_id"`
	BaseVersion   uint64 `json:"base_version"`
	NewVersion    uint64 `json:"new_version,omitempty"`
	Steps         int    `json:"steps"`
	// Plugin is set for filtered transactions (the vetoing plugin) and
	// follow-ups (the appending plugin).
	Plugin string `json:"plugin,omitempty"`
	Error  string `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability. All hooks are
// optional; nil hooks are skipped.
type LifecycleHooks struct {
	OnTransactionApplied  func(context.Context, *TransactionEvent)
	OnTransactionFiltered func(context.Context, *TransactionEvent)
	OnTransactionFailed   func(context.Context, *TransactionEvent)
	OnFollowUp            func(context.Context, *TransactionEvent)
}
