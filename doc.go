/*
Package weft is a transactional core for collaborative document editing. It
models a document as an immutable tree of typed nodes, edits as transactions
of invertible steps, and extension behavior as plugins with dependency-ordered
typed state.

# Concept

Every edit flows through the same pipeline: plugins may veto the transaction,
its steps fold into a new structurally-shared tree, plugin state fields
recompute in dependency order, and plugins may append bounded follow-up
transactions. A transaction either applies completely or not at all; the
previous state stays valid and readable forever.

# Key Features

  - Immutable Trees: every version is a first-class value; old versions
    never change and share untouched structure with new ones.
  - Invertible Steps: each step derives its inverse from the state it was
    applied to, which makes undo a plain transaction.
  - Plugin System: typed per-plugin state, filter and append hooks,
    priorities, dependencies and conflicts resolved at startup.
  - Persistence: versioned snapshot encoding with pluggable stores
    (in-memory, Redis) and optional encryption middleware.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/weft"
		"github.com/aretw0/weft/pkg/domain"
		"github.com/aretw0/weft/pkg/tree"
	)

	func main() {
		eng, err := weft.New()
		if err != nil {
			log.Fatal(err)
		}

		// A fresh single-node document at version 0.
		state, err := eng.NewDocument(tree.NewNode("doc"))
		if err != nil {
			log.Fatal(err)
		}

		// Add a paragraph under the root.
		tx := domain.NewTransaction(state)
		tx.Add(&domain.AddNodeStep{
			Parent: state.Pool.RootID(),
			Node:   tree.NewNode("paragraph"),
			Pos:    -1,
		})
		if err := tx.Commit(); err != nil {
			log.Fatal(err)
		}

		next, err := eng.Apply(context.Background(), state, tx)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("version:", next.Version) // 1; state is still version 0
	}
*/
package weft
