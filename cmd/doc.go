// Package cmd implements the command-line interface for the cellar cell
// store library. It provides a small command tree for exercising the library
// in-process.
//
// The package is organized into subpackages:
//
//   - bench: In-process benchmarks against the store and memtable
//   - util: Shared utilities for configuration and logging (internal use)
//
// See cellar -help for a list of all commands.
package cmd
