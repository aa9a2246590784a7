// Package cli holds the small shared pieces of the relay command line:
// typed command errors, signal-driven shutdown contexts, result
// formatting for the benchmark subcommand, and a terminal progress bar.
package cli
