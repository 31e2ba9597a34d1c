/*
Package plugin implements the extension system: typed plugin state, the
dependency graph, and the registration manager.

A plugin is described by a Spec (metadata, config, optional StateField,
optional Behavior hooks). The Manager validates the dependency graph at
Finalize time (missing and circular dependencies are hard registration
errors, with every violation reported at once) and freezes the resolved
topological order, which the engine then reuses for every apply.

Plugins never touch the engine directly: transactions and states reach
plugin code only through FilterTransaction, AppendTransaction and
StateField.Apply.
*/
package plugin
