// Package workflow implements the core runtime of a directed-graph
// agent-orchestration engine: a Pregel-style superstep scheduler that drives
// a set of user-defined Executors through synchronized rounds until the
// graph becomes quiescent.
//
// The runtime is deliberately agnostic to what an Executor computes. It
// never imports an LLM SDK or chat client; those are external collaborators
// that plug in behind the Executor interface.
package workflow
