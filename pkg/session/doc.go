/*
Package session implements document session management and persistence
orchestration.

It gives each open document a single writer: transactions against the same
document are serialized through a per-document lock while unrelated documents
proceed concurrently. Accepted states are encoded and persisted through a
snapshot store adapter.
*/
package session
