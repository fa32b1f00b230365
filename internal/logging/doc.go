// Package logging builds slog loggers for the CLI and the processing
// run, with console and JSON handlers selected by configuration and a
// dated run log under the processing tree.
package logging
