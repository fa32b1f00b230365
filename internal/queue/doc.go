// Package queue persists the per-package deposit state machine in
// SQLite so interrupted runs can resume without reprocessing or
// re-minting DOIs.
package queue
