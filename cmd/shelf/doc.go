// Package main hosts the shelf CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the shelfd daemon: operation submission and follow-mode
// progress streaming, status and history queries, cancellation, and
// configuration scaffolding. It centralizes configuration resolution and API
// address discovery so subcommands can focus on user experience instead of
// wiring.
package main
