// Package etd defines the package record shared by the deposit
// pipeline stages and the error taxonomy the workflow boundary
// recognizes.
package etd
