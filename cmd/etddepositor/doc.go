// Package main hosts the etddepositor CLI entrypoint and command graph.
//
// The Cobra-based command tree sweeps incoming thesis packages into the
// processing area, runs the deposit pipeline, and exposes queue
// maintenance and configuration scaffolding. Configuration resolution
// and structured logging setup are centralized here so subcommands can
// focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the
// internal packages first, then surface it through dedicated commands
// or flags here.
package main
